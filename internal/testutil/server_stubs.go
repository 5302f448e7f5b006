package testutil

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
)

// ErrListen is returned by ErrHTTPServer.ListenAndServe.
var ErrListen = errors.New("listen failure")

// BlockingHTTPServer serves until Shutdown is called, like net/http.Server.
type BlockingHTTPServer struct {
	AddrVal    string
	HandlerVal http.Handler

	listenCalls   atomic.Int32
	shutdownCalls atomic.Int32
	once          sync.Once
	closed        chan struct{}
	initOnce      sync.Once
}

func (b *BlockingHTTPServer) init() {
	b.initOnce.Do(func() { b.closed = make(chan struct{}) })
}

func (b *BlockingHTTPServer) ListenAndServe() error {
	b.init()
	b.listenCalls.Add(1)
	<-b.closed
	return http.ErrServerClosed
}

func (b *BlockingHTTPServer) Shutdown(ctx context.Context) error {
	b.init()
	b.shutdownCalls.Add(1)
	b.once.Do(func() { close(b.closed) })
	return nil
}

func (b *BlockingHTTPServer) Addr() string {
	return b.AddrVal
}

func (b *BlockingHTTPServer) Handler() http.Handler {
	return b.HandlerVal
}

// ListenCalls reports how many times ListenAndServe ran.
func (b *BlockingHTTPServer) ListenCalls() int { return int(b.listenCalls.Load()) }

// ShutdownCalls reports how many times Shutdown ran.
func (b *BlockingHTTPServer) ShutdownCalls() int { return int(b.shutdownCalls.Load()) }

// ErrHTTPServer fails ListenAndServe immediately.
type ErrHTTPServer struct {
	shutdownCalls atomic.Int32
}

func (e *ErrHTTPServer) ListenAndServe() error {
	return ErrListen
}

func (e *ErrHTTPServer) Shutdown(ctx context.Context) error {
	e.shutdownCalls.Add(1)
	return nil
}

func (e *ErrHTTPServer) Addr() string {
	return ":0"
}

func (e *ErrHTTPServer) Handler() http.Handler {
	return http.NewServeMux()
}

// ShutdownCalls reports how many times Shutdown ran.
func (e *ErrHTTPServer) ShutdownCalls() int { return int(e.shutdownCalls.Load()) }
