package world

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolExhausted все декодеры пула выданы
var ErrPoolExhausted = errors.New("world: пул декодеров исчерпан")

// Pool набор декодеров, адресуемых номером слота.
// Выданный декодер принадлежит вызывающему до Return.
type Pool struct {
	chunks []*FacetChunk
	free   chan int

	mu  sync.Mutex
	out []bool
}

// NewPool создаёт size декодеров поверх src
func NewPool(src BlockSource, size int) *Pool {
	if size < 1 {
		size = 1
	}

	p := &Pool{
		chunks: make([]*FacetChunk, size),
		free:   make(chan int, size),
		out:    make([]bool, size),
	}
	for i := range p.chunks {
		p.chunks[i] = NewFacetChunk(src, 0, 0)
		p.free <- i
	}
	return p
}

// Checkout выдаёт свободный декодер, привязанный к блоку (bx, by), без ожидания
func (p *Pool) Checkout(bx, by int) (int, *FacetChunk, error) {
	select {
	case slot := <-p.free:
		return slot, p.bind(slot, bx, by), nil
	default:
		return -1, nil, ErrPoolExhausted
	}
}

// Acquire как Checkout, но ждёт освобождения слота до отмены ctx
func (p *Pool) Acquire(ctx context.Context, bx, by int) (int, *FacetChunk, error) {
	select {
	case slot := <-p.free:
		return slot, p.bind(slot, bx, by), nil
	case <-ctx.Done():
		return -1, nil, ctx.Err()
	}
}

func (p *Pool) bind(slot, bx, by int) *FacetChunk {
	p.mu.Lock()
	p.out[slot] = true
	p.mu.Unlock()

	c := p.chunks[slot]
	c.SetTo(bx, by)
	return c
}

// Return очищает декодер и возвращает слот в пул. Повторный Return слота игнорируется.
func (p *Pool) Return(slot int) {
	if slot < 0 || slot >= len(p.chunks) {
		return
	}

	p.mu.Lock()
	if !p.out[slot] {
		p.mu.Unlock()
		return
	}
	p.out[slot] = false
	p.mu.Unlock()

	p.chunks[slot].Unload()
	p.free <- slot
}

// Size число декодеров
func (p *Pool) Size() int {
	return len(p.chunks)
}

// Available число свободных декодеров
func (p *Pool) Available() int {
	return len(p.free)
}
