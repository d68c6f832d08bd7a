package vec

// BlockShift сдвиг тайловых координат в координаты блока (блок = 8x8 тайлов)
const BlockShift = 3

// BlockSize сторона блока в тайлах
const BlockSize = 1 << BlockShift

// Vec2 представляет 2D координаты
type Vec2 struct {
	X, Y int
}

// ToBlockCoords преобразует тайловые координаты в координаты блока
func (v Vec2) ToBlockCoords() Vec2 {
	return Vec2{X: v.X >> BlockShift, Y: v.Y >> BlockShift} // Деление на 8
}

// BlockOrigin возвращает тайловые координаты левого верхнего угла блока
func (v Vec2) BlockOrigin() Vec2 {
	return Vec2{X: v.X << BlockShift, Y: v.Y << BlockShift}
}

// LocalInBlock возвращает локальные координаты внутри блока
func (v Vec2) LocalInBlock() Vec2 {
	return Vec2{X: v.X & (BlockSize - 1), Y: v.Y & (BlockSize - 1)} // Модуль 8
}

// Add складывает векторы
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// CellIndex индекс ячейки внутри блока в порядке хранения (строка за строкой)
func (v Vec2) CellIndex() int {
	local := v.LocalInBlock()
	return local.Y*BlockSize + local.X
}
