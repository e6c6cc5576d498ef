package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"
)

const (
	ownerA = Principal("ownerA")
	buyerB = Principal("buyerB")
)

func mustRecord(t *testing.T, at int64) Record {
	t.Helper()
	rec, err := NewRecord("agenta", "https://a.example", "travel", ownerA, time.Unix(at, 0))
	if err != nil {
		t.Fatalf("NewRecord() error = %v", err)
	}
	return rec
}

func TestNewRecord(t *testing.T) {
	tests := []struct {
		name     string
		recName  string
		endpoint string
		category string
		caller   Principal
		wantErr  error
	}{
		{name: "valid", recName: "agenta", endpoint: "https://a.example", category: "travel", caller: ownerA},
		{name: "min length name", recName: "abc", caller: ownerA},
		{name: "max length name", recName: strings.Repeat("a", 32), caller: ownerA},
		{name: "name too short", recName: "ab", caller: ownerA, wantErr: ErrInvalidNameLength},
		{name: "name too long", recName: strings.Repeat("a", 33), caller: ownerA, wantErr: ErrInvalidNameLength},
		{name: "max endpoint", recName: "agenta", endpoint: strings.Repeat("e", 256), caller: ownerA},
		{name: "endpoint too long", recName: "agenta", endpoint: strings.Repeat("e", 257), caller: ownerA, wantErr: ErrEndpointTooLong},
		{name: "category too long", recName: "agenta", category: strings.Repeat("c", 33), caller: ownerA, wantErr: ErrCategoryTooLong},
		{name: "empty caller", recName: "agenta", caller: "", wantErr: ErrInvalidPrincipal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewRecord(tt.recName, tt.endpoint, tt.category, tt.caller, time.Unix(1000, 0))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewRecord() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if rec.Owner != tt.caller {
				t.Errorf("Owner = %v, want %v", rec.Owner, tt.caller)
			}
			if rec.IsListed || rec.ListPrice != 0 {
				t.Errorf("new record listed = %v price = %v, want unlisted at 0", rec.IsListed, rec.ListPrice)
			}
			if got := rec.ExpiresAt.Sub(rec.CreatedAt); got != 31536000*time.Second {
				t.Errorf("validity = %v, want 31536000s", got)
			}
		})
	}
}

func TestNewRecordExpiry(t *testing.T) {
	rec := mustRecord(t, 1000)
	if got := rec.ExpiresAt.Unix(); got != 31537000 {
		t.Errorf("ExpiresAt = %d, want 31537000", got)
	}
}

func TestTransfer(t *testing.T) {
	tests := []struct {
		name     string
		listed   bool
		caller   Principal
		newOwner Principal
		wantErr  error
	}{
		{name: "unlisted", caller: ownerA, newOwner: buyerB},
		{name: "listed transfer clears listing", listed: true, caller: ownerA, newOwner: buyerB},
		{name: "non-owner", caller: buyerB, newOwner: buyerB, wantErr: ErrUnauthorized},
		{name: "empty new owner", caller: ownerA, newOwner: "", wantErr: ErrInvalidPrincipal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := mustRecord(t, 1000)
			if tt.listed {
				if err := rec.ListForSale(ownerA, 500); err != nil {
					t.Fatalf("ListForSale() error = %v", err)
				}
			}
			before := rec

			err := rec.Transfer(tt.caller, tt.newOwner)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Transfer() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if rec != before {
					t.Errorf("failed Transfer() mutated record: %+v, want %+v", rec, before)
				}
				return
			}
			if rec.Owner != tt.newOwner {
				t.Errorf("Owner = %v, want %v", rec.Owner, tt.newOwner)
			}
			if rec.IsListed || rec.ListPrice != 0 {
				t.Errorf("listing after transfer = %v/%v, want false/0", rec.IsListed, rec.ListPrice)
			}
		})
	}
}

func TestUpdateEndpoint(t *testing.T) {
	rec := mustRecord(t, 1000)
	if err := rec.ListForSale(ownerA, 10); err != nil {
		t.Fatalf("ListForSale() error = %v", err)
	}

	if err := rec.UpdateEndpoint(buyerB, "https://b.example"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("UpdateEndpoint() by non-owner error = %v, want %v", err, ErrUnauthorized)
	}
	if err := rec.UpdateEndpoint(ownerA, strings.Repeat("x", 257)); !errors.Is(err, ErrEndpointTooLong) {
		t.Errorf("UpdateEndpoint() too long error = %v, want %v", err, ErrEndpointTooLong)
	}
	if err := rec.UpdateEndpoint(ownerA, "https://b.example"); err != nil {
		t.Fatalf("UpdateEndpoint() error = %v", err)
	}
	if rec.Endpoint != "https://b.example" {
		t.Errorf("Endpoint = %q, want %q", rec.Endpoint, "https://b.example")
	}
	if !rec.IsListed || rec.ListPrice != 10 {
		t.Errorf("UpdateEndpoint() touched listing: %v/%v", rec.IsListed, rec.ListPrice)
	}
}

func TestListAndUnlist(t *testing.T) {
	rec := mustRecord(t, 1000)

	if err := rec.ListForSale(ownerA, 0); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("ListForSale(0) error = %v, want %v", err, ErrInvalidPrice)
	}
	if err := rec.ListForSale(ownerA, -5); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("ListForSale(-5) error = %v, want %v", err, ErrInvalidPrice)
	}
	if rec.IsListed || rec.ListPrice != 0 {
		t.Fatalf("invalid price changed listing: %v/%v", rec.IsListed, rec.ListPrice)
	}
	if err := rec.ListForSale(buyerB, 500); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("ListForSale() by non-owner error = %v, want %v", err, ErrUnauthorized)
	}

	if err := rec.ListForSale(ownerA, 500); err != nil {
		t.Fatalf("ListForSale() error = %v", err)
	}
	if !rec.IsListed || rec.ListPrice != 500 {
		t.Errorf("listing = %v/%v, want true/500", rec.IsListed, rec.ListPrice)
	}

	for i := 0; i < 2; i++ {
		if err := rec.Unlist(ownerA); err != nil {
			t.Fatalf("Unlist() call %d error = %v", i+1, err)
		}
		if rec.IsListed || rec.ListPrice != 0 {
			t.Errorf("listing after Unlist() = %v/%v, want false/0", rec.IsListed, rec.ListPrice)
		}
	}
}

func TestCheckPurchase(t *testing.T) {
	listed := func(t *testing.T) Record {
		rec := mustRecord(t, 1000)
		if err := rec.ListForSale(ownerA, 500); err != nil {
			t.Fatalf("ListForSale() error = %v", err)
		}
		return rec
	}

	tests := []struct {
		name     string
		rec      func(t *testing.T) Record
		seller   Principal
		expected int64
		at       int64
		wantErr  error
	}{
		{name: "ok", rec: listed, seller: ownerA, at: 2000},
		{name: "ok with matching price", rec: listed, seller: ownerA, expected: 500, at: 2000},
		{name: "wrong seller wins over not listed", rec: mustRecord1000, seller: buyerB, at: 2000, wantErr: ErrWrongSeller},
		{name: "not listed", rec: mustRecord1000, seller: ownerA, at: 2000, wantErr: ErrNotForSale},
		{name: "expired at exact expiry", rec: listed, seller: ownerA, at: 31537000, wantErr: ErrDomainExpired},
		{name: "expired later", rec: listed, seller: ownerA, at: 40000000, wantErr: ErrDomainExpired},
		{name: "price changed", rec: listed, seller: ownerA, expected: 400, at: 2000, wantErr: ErrPriceMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec(t)
			err := rec.CheckPurchase(buyerB, tt.seller, tt.expected, time.Unix(tt.at, 0))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckPurchase() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func mustRecord1000(t *testing.T) Record { return mustRecord(t, 1000) }

func TestCompleteSale(t *testing.T) {
	rec := mustRecord(t, 1000)
	if err := rec.ListForSale(ownerA, 500); err != nil {
		t.Fatalf("ListForSale() error = %v", err)
	}
	rec.CompleteSale(buyerB)
	if rec.Owner != buyerB || rec.IsListed || rec.ListPrice != 0 {
		t.Errorf("after CompleteSale() = %+v, want owner buyerB unlisted", rec)
	}
}

func TestRenew(t *testing.T) {
	year := int64(31536000)

	tests := []struct {
		name string
		at   int64
		want int64
	}{
		{name: "valid extends from expiry", at: 2000, want: 1000 + 2*year},
		{name: "expired extends from now", at: 1000 + 3*year, want: 1000 + 4*year},
		{name: "exactly at expiry", at: 1000 + year, want: 1000 + 2*year},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := mustRecord(t, 1000)
			if err := rec.Renew(ownerA, time.Unix(tt.at, 0)); err != nil {
				t.Fatalf("Renew() error = %v", err)
			}
			if got := rec.ExpiresAt.Unix(); got != tt.want {
				t.Errorf("ExpiresAt = %d, want %d", got, tt.want)
			}
		})
	}

	t.Run("twice in a row adds two periods", func(t *testing.T) {
		rec := mustRecord(t, 1000)
		now := time.Unix(5000, 0)
		for i := 0; i < 2; i++ {
			if err := rec.Renew(ownerA, now); err != nil {
				t.Fatalf("Renew() error = %v", err)
			}
		}
		if got, want := rec.ExpiresAt.Unix(), 1000+3*year; got != want {
			t.Errorf("ExpiresAt = %d, want %d", got, want)
		}
	})

	t.Run("non-owner", func(t *testing.T) {
		rec := mustRecord(t, 1000)
		if err := rec.Renew(buyerB, time.Unix(2000, 0)); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("Renew() error = %v, want %v", err, ErrUnauthorized)
		}
	})
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"agent://travel": "travel",
		"travel":         "travel",
		"  agent://abc ": "abc",
	}
	for in, want := range tests {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestStateMachineInvariants drives random operation sequences through the
// transitions and checks the record invariants after every step.
func TestStateMachineInvariants(t *testing.T) {
	principals := []Principal{ownerA, buyerB, "carol"}

	rapid.Check(t, func(rt *rapid.T) {
		now := rapid.Int64Range(0, 1<<32).Draw(rt, "start")
		rec, err := NewRecord("agenta", "https://a.example", "travel", ownerA, time.Unix(now, 0))
		if err != nil {
			rt.Fatalf("NewRecord() error = %v", err)
		}
		created := rec.CreatedAt

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			now += rapid.Int64Range(0, 2*31536000).Draw(rt, "advance")
			at := time.Unix(now, 0)
			caller := rapid.SampledFrom(principals).Draw(rt, "caller")
			before := rec

			var opErr error
			switch rapid.IntRange(0, 5).Draw(rt, "op") {
			case 0:
				opErr = rec.Transfer(caller, rapid.SampledFrom(principals).Draw(rt, "to"))
			case 1:
				opErr = rec.UpdateEndpoint(caller, "https://x.example")
			case 2:
				opErr = rec.ListForSale(caller, rapid.Int64Range(-10, 1000).Draw(rt, "price"))
			case 3:
				opErr = rec.Unlist(caller)
			case 4:
				if opErr = rec.CheckPurchase(caller, rec.Owner, 0, at); opErr == nil {
					rec.CompleteSale(caller)
				}
			case 5:
				opErr = rec.Renew(caller, at)
			}

			if opErr != nil && rec != before {
				rt.Fatalf("failed op mutated record: %+v -> %+v", before, rec)
			}
			if rec.IsListed != (rec.ListPrice > 0) {
				rt.Fatalf("listing invariant broken: listed=%v price=%d", rec.IsListed, rec.ListPrice)
			}
			if !rec.Owner.Valid() {
				rt.Fatalf("record became ownerless")
			}
			if rec.ExpiresAt.Before(before.ExpiresAt) || rec.ExpiresAt.Before(rec.CreatedAt) {
				rt.Fatalf("expiry decreased: %v -> %v", before.ExpiresAt, rec.ExpiresAt)
			}
			if rec.Name != "agenta" || !rec.CreatedAt.Equal(created) {
				rt.Fatalf("immutable fields changed: %+v", rec)
			}
		}
	})
}
