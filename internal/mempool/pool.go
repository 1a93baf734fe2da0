// Package mempool keeps size-classed buffers for the per-pixel hot paths
// (binary masks, NCHW tensors).
package mempool

import (
	"sync"
)

const step = 1024

var (
	float32Pools sync.Map // size class -> *sync.Pool
	boolPools    sync.Map
)

// sizeClass rounds n up to a multiple of 1024.
func sizeClass(n int) int {
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

func poolFor[T any](pools *sync.Map, cls int) *sync.Pool {
	p, _ := pools.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]T, cls)
		return &buf
	}})
	return p.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

func get[T any](pools *sync.Map, n int) []T {
	if n <= 0 {
		return nil
	}
	cls := sizeClass(n)
	bp, ok := poolFor[T](pools, cls).Get().(*[]T)
	if !ok || cap(*bp) < cls {
		return make([]T, n)
	}
	buf := (*bp)[:n]
	clear(buf)
	return buf
}

func put[T any](pools *sync.Map, buf []T) {
	if cap(buf) < step {
		return
	}
	// Only exact classes go back so a Get never sees a short buffer.
	cls := cap(buf)
	if cls%step != 0 {
		return
	}
	full := buf[:cls]
	poolFor[T](pools, cls).Put(&full)
}

// GetFloat32 returns a zeroed buffer of length n. Return it with PutFloat32.
func GetFloat32(n int) []float32 { return get[float32](&float32Pools, n) }

// PutFloat32 returns a buffer obtained from GetFloat32. Nil is ignored.
func PutFloat32(buf []float32) { put(&float32Pools, buf) }

// GetBool returns a zeroed (all false) buffer of length n. Return it with PutBool.
func GetBool(n int) []bool { return get[bool](&boolPools, n) }

// PutBool returns a buffer obtained from GetBool. Nil is ignored.
func PutBool(buf []bool) { put(&boolPools, buf) }
