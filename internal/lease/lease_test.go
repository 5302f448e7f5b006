package lease

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestLocalLeaseIsExclusive(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, ok, err := l.TryAcquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.TryAcquire(ctx); ok {
		t.Fatalf("expected second acquire to fail while held")
	}
	release()
	release() // double release is harmless

	release2, ok, _ := l.TryAcquire(ctx)
	if !ok {
		t.Fatalf("expected acquire after release")
	}
	release2()
}

func TestLocalLeaseConcurrentAcquire(t *testing.T) {
	l := NewLocal()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok, _ := l.TryAcquire(context.Background()); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestLocalLeaseRejectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := NewLocal().TryAcquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func setupRedis(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestRedisLeaseAcrossReplicas(t *testing.T) {
	client, mr := setupRedis(t)
	ctx := context.Background()
	a := NewRedis(client, "tick", time.Minute, nil)
	b := NewRedis(client, "tick", time.Minute, nil)

	releaseA, ok, err := a.TryAcquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected replica a to acquire, ok=%v err=%v", ok, err)
	}
	if !mr.Exists("tick") {
		t.Fatalf("expected lease key set")
	}
	if _, ok, _ := b.TryAcquire(ctx); ok {
		t.Fatalf("expected replica b to be refused while a holds the lease")
	}

	releaseA()
	if mr.Exists("tick") {
		t.Fatalf("expected lease key deleted on release")
	}
	releaseB, ok, _ := b.TryAcquire(ctx)
	if !ok {
		t.Fatalf("expected replica b to acquire after release")
	}
	releaseB()
}

func TestRedisLeaseReleaseDoesNotStealExpiredLease(t *testing.T) {
	client, mr := setupRedis(t)
	ctx := context.Background()
	a := NewRedis(client, "tick", time.Second, nil)
	b := NewRedis(client, "tick", time.Minute, nil)

	releaseA, ok, _ := a.TryAcquire(ctx)
	if !ok {
		t.Fatalf("expected a to acquire")
	}
	mr.FastForward(2 * time.Second)

	if _, ok, _ := b.TryAcquire(ctx); !ok {
		t.Fatalf("expected b to acquire after a's lease expired")
	}
	releaseA()
	if !mr.Exists("tick") {
		t.Fatalf("expected a's late release to leave b's lease in place")
	}
}

func TestRedisLeaseReportsConnectionErrors(t *testing.T) {
	client, mr := setupRedis(t)
	mr.Close()

	l := NewRedis(client, "", 0, nil)
	if _, ok, err := l.TryAcquire(context.Background()); err == nil || ok {
		t.Fatalf("expected error when redis is down, ok=%v err=%v", ok, err)
	}
}

func TestChainReleasesOnPartialFailure(t *testing.T) {
	first := NewLocal()
	second := NewLocal()
	ctx := context.Background()

	hold, _, _ := second.TryAcquire(ctx)
	chain := Chain{first, second}
	if _, ok, _ := chain.TryAcquire(ctx); ok {
		t.Fatalf("expected chain to fail while second is held")
	}
	if release, ok, _ := first.TryAcquire(ctx); !ok {
		t.Fatalf("expected chain to release first after partial failure")
	} else {
		release()
	}

	hold()
	release, ok, _ := chain.TryAcquire(ctx)
	if !ok {
		t.Fatalf("expected chain to acquire when both free")
	}
	release()
	if r, ok, _ := second.TryAcquire(ctx); !ok {
		t.Fatalf("expected chain release to free second")
	} else {
		r()
	}
}
