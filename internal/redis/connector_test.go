package redis

import (
	"context"
	"testing"
	"time"

	"github.com/MrSnakeDoc/ans/internal/logger"
	"github.com/alicebob/miniredis/v2"
)

func testOptions(addr string) ConnectOptions {
	return ConnectOptions{
		Addr:           addr,
		ConnectTimeout: 300 * time.Millisecond,
		RetryInterval:  10 * time.Millisecond,
		MaxWait:        40 * time.Millisecond,
		PingTimeout:    50 * time.Millisecond,
		WarnThreshold:  1,
	}
}

func TestValidate(t *testing.T) {
	valid := testOptions("localhost:6379")

	tests := []struct {
		name    string
		mutate  func(*ConnectOptions)
		wantErr bool
	}{
		{"valid", func(*ConnectOptions) {}, false},
		{"no addr", func(o *ConnectOptions) { o.Addr = "" }, true},
		{"zero connect timeout", func(o *ConnectOptions) { o.ConnectTimeout = 0 }, true},
		{"zero retry interval", func(o *ConnectOptions) { o.RetryInterval = 0 }, true},
		{"zero max wait", func(o *ConnectOptions) { o.MaxWait = 0 }, true},
		{"zero ping timeout", func(o *ConnectOptions) { o.PingTimeout = 0 }, true},
		{"negative warn threshold", func(o *ConnectOptions) { o.WarnThreshold = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)
			if err := opts.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	b := &backoff{next: 2 * time.Second, max: 10 * time.Second}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}

	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %v, want %v", i, got, w)
		}
	}
}

func TestNewConnects(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := New(context.Background(), testOptions(mr.Addr()), logger.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Errorf("Set() error = %v", err)
	}
}

func TestNewGivesUp(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	start := time.Now()
	_, err := New(context.Background(), testOptions(addr), logger.NewNop())
	if err == nil {
		t.Fatal("New() should fail when redis is down")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("New() took %v, should respect ConnectTimeout", elapsed)
	}
}
