package usage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/artemshloyda/photobatch/internal/storage"
)

type fixedIdentity string

func (f fixedIdentity) DeviceID(context.Context) (string, error) { return string(f), nil }

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newGate(t *testing.T, store Store, device string) (*Gate, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)}
	g := NewGate(store, fixedIdentity(device), 5, zaptest.NewLogger(t))
	g.SetClock(c.now)
	return g, c
}

func TestHashString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "00000000"},
		{"a", "00000061"},
		{"ab", "00000c21"},
	}

	for _, tt := range tests {
		if got := HashString(tt.in); got != tt.want {
			t.Errorf("HashString(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if got := HashString("очень длинная строка для переполнения int32"); len(got) != 8 {
		t.Errorf("HashString() = %q, want 8 hex digits", got)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]string{"host", "linux", "amd64"})
	b := Fingerprint([]string{"host", "linux", "amd64"})
	c := Fingerprint([]string{"host", "darwin", "arm64"})

	if a != b {
		t.Errorf("Fingerprint() not deterministic: %s vs %s", a, b)
	}
	if a == c {
		t.Errorf("different environments gave the same fingerprint %s", a)
	}
	if len(a) != 17 || a[8] != '-' {
		t.Errorf("Fingerprint() = %q, want hash1-hash2", a)
	}
}

func TestDeviceIdentity(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	env := []string{"host", "linux"}
	salts := []string{"aaaa1111", "bbbb2222"}
	d := &DeviceIdentity{
		store:      store,
		components: func() []string { return env },
		salt: func() string {
			s := salts[0]
			salts = salts[1:]
			return s
		},
	}

	first, err := d.DeviceID(ctx)
	if err != nil {
		t.Fatalf("DeviceID() error = %v", err)
	}
	if want := Fingerprint(env) + "-aaaa1111"; first != want {
		t.Errorf("DeviceID() = %s, want %s", first, want)
	}

	again, _ := d.DeviceID(ctx)
	if again != first {
		t.Errorf("same fingerprint: DeviceID() = %s, want %s", again, first)
	}

	env = []string{"host", "darwin"}
	changed, _ := d.DeviceID(ctx)
	if want := Fingerprint(env) + "-aaaa1111"; changed != want {
		t.Errorf("changed fingerprint: DeviceID() = %s, want %s", changed, want)
	}

	if err := store.Set(ctx, KeyDeviceID, "{broken"); err != nil {
		t.Fatal(err)
	}
	fresh, _ := d.DeviceID(ctx)
	if want := Fingerprint(env) + "-bbbb2222"; fresh != want {
		t.Errorf("corrupt record: DeviceID() = %s, want %s", fresh, want)
	}
}

func TestNewDeviceIdentity(t *testing.T) {
	d := NewDeviceIdentity(storage.NewMemoryStore())
	id, err := d.DeviceID(context.Background())
	if err != nil {
		t.Fatalf("DeviceID() error = %v", err)
	}
	// hash1-hash2-salt
	if len(id) != 26 {
		t.Errorf("DeviceID() = %q, want 26 characters", id)
	}
}

func TestGate_CheckAndRecord(t *testing.T) {
	ctx := context.Background()
	g, _ := newGate(t, storage.NewMemoryStore(), "dev-1")

	if ok, _ := g.RecordUsage(ctx, 3); !ok {
		t.Fatal("RecordUsage(3) = false, want true")
	}

	if ok, _ := g.CheckAdmission(ctx, 2); !ok {
		t.Error("CheckAdmission(2) with 3 used = false, want true")
	}
	if ok, _ := g.CheckAdmission(ctx, 3); ok {
		t.Error("CheckAdmission(3) with 3 used = true, want false")
	}
	if err := g.Admit(ctx, 3); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Admit(3) error = %v, want ErrQuotaExceeded", err)
	}

	if ok, _ := g.RecordUsage(ctx, 3); ok {
		t.Error("RecordUsage(3) over limit = true, want false")
	}
	st, _ := g.Status(ctx)
	if st.Conversions != 3 || st.TotalConversions != 3 {
		t.Errorf("after denied record: %d/%d, want 3/3", st.Conversions, st.TotalConversions)
	}

	if ok, _ := g.RecordUsage(ctx, 2); !ok {
		t.Error("RecordUsage(2) = false, want true")
	}
	st, _ = g.Status(ctx)
	if st.Conversions != 5 || st.RemainingToday != 0 || st.CanConvert {
		t.Errorf("Status() = %+v, want 5 used, 0 remaining, cannot convert", st)
	}
}

func TestGate_DailyReset(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	g, c := newGate(t, store, "dev-1")

	g.RecordUsage(ctx, 4)
	c.t = c.t.AddDate(0, 0, 1)

	st, err := g.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Conversions != 0 || st.TotalConversions != 4 || st.Date != "2026-03-11" {
		t.Errorf("next day Status() = %+v, want 0 today, 4 total", st.Ledger)
	}
}

func TestGate_DeviceChange(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	g1, _ := newGate(t, store, "dev-1")
	g1.RecordUsage(ctx, 3)

	g2, _ := newGate(t, store, "dev-2")
	st, _ := g2.Status(ctx)
	if st.DeviceID != "dev-2" || st.Conversions != 0 || st.TotalConversions != 0 {
		t.Errorf("new device Status() = %+v, want zero counters", st.Ledger)
	}
	if !st.CanConvert || st.RemainingToday != 5 {
		t.Errorf("new device remaining = %d, want 5", st.RemainingToday)
	}

	st, _ = g1.Status(ctx)
	if st.Conversions != 3 || st.TotalConversions != 3 {
		t.Errorf("first device Status() = %+v, want 3/3", st.Ledger)
	}
}

func TestGate_SharedStore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	a, _ := newGate(t, store, "host-a")
	b, _ := newGate(t, store, "host-b")

	for round := 0; round < 3; round++ {
		want := round == 0
		if ok, _ := a.RecordUsage(ctx, 5); ok != want {
			t.Errorf("round %d: a.RecordUsage(5) = %v, want %v", round, ok, want)
		}
		if ok, _ := b.RecordUsage(ctx, 5); ok != want {
			t.Errorf("round %d: b.RecordUsage(5) = %v, want %v", round, ok, want)
		}
	}

	if ok, _ := a.CheckAdmission(ctx, 1); ok {
		t.Error("a.CheckAdmission(1) after 5 used = true, want false")
	}
	st, _ := a.Status(ctx)
	if st.Conversions != 5 || st.TotalConversions != 5 {
		t.Errorf("a Status() = %+v, want 5/5", st.Ledger)
	}
}

func TestGate_LegacyLedger(t *testing.T) {
	ctx := context.Background()

	legacy := func(device string) *storage.MemoryStore {
		store := storage.NewMemoryStore()
		data, _ := json.Marshal(Ledger{DeviceID: device, Date: "2026-03-10", Conversions: 4, TotalConversions: 9})
		store.Set(ctx, KeyUsage, string(data))
		return store
	}

	tests := []struct {
		name        string
		owner       string
		conversions int
		total       int
	}{
		{"same device keeps counters", "dev-1", 4, 9},
		{"other device keeps total", "dev-old", 0, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := legacy(tt.owner)
			g, _ := newGate(t, store, "dev-1")
			st, err := g.Status(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if st.Conversions != tt.conversions || st.TotalConversions != tt.total {
				t.Errorf("Status() = %d/%d, want %d/%d", st.Conversions, st.TotalConversions, tt.conversions, tt.total)
			}

			other, _ := newGate(t, store, "dev-2")
			st, _ = other.Status(ctx)
			if st.TotalConversions != 0 {
				t.Errorf("second device TotalConversions = %d, want 0", st.TotalConversions)
			}
		})
	}
}

func TestGate_CorruptLedger(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	store.Set(ctx, KeyUsage, "not json")
	store.Set(ctx, LedgerKey("dev-1"), "not json")

	g, _ := newGate(t, store, "dev-1")
	st, err := g.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Conversions != 0 || st.TotalConversions != 0 {
		t.Errorf("Status() = %+v, want zero counters", st.Ledger)
	}
}

func TestGate_Premium(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	g, c := newGate(t, store, "dev-1")

	for _, key := range []string{"", "short", "   1234567   "} {
		if err := g.ActivatePremium(ctx, key); !errors.Is(err, ErrInvalidLicense) {
			t.Errorf("ActivatePremium(%q) error = %v, want ErrInvalidLicense", key, err)
		}
	}

	if err := g.ActivatePremium(ctx, " ABCD-1234 "); err != nil {
		t.Fatalf("ActivatePremium() error = %v", err)
	}

	raw, _, _ := store.Get(ctx, KeyPremium)
	var ent Entitlement
	if err := json.Unmarshal([]byte(raw), &ent); err != nil {
		t.Fatal(err)
	}
	if !ent.IsPremium || ent.LicenseKey != "ABCD-1234" || ent.ActivatedAt == nil || !ent.ActivatedAt.Equal(c.t) {
		t.Errorf("stored entitlement = %+v", ent)
	}

	if ok, _ := g.RecordUsage(ctx, 20); !ok {
		t.Error("premium RecordUsage(20) = false, want true")
	}
	if ok, _ := g.CheckAdmission(ctx, 100); !ok {
		t.Error("premium CheckAdmission(100) = false, want true")
	}
	st, _ := g.Status(ctx)
	if st.Conversions != 20 || st.TotalConversions != 20 || !st.CanConvert {
		t.Errorf("premium Status() = %+v", st)
	}

	if err := g.DeactivatePremium(ctx); err != nil {
		t.Fatal(err)
	}
	if ok, _ := g.CheckAdmission(ctx, 1); ok {
		t.Error("after deactivation CheckAdmission(1) with 20 used = true, want false")
	}
	st, _ = g.Status(ctx)
	if st.IsPremium || st.RemainingToday != 0 {
		t.Errorf("after deactivation Status() = %+v", st)
	}
}

func TestGate_NegativeCount(t *testing.T) {
	g, _ := newGate(t, storage.NewMemoryStore(), "dev-1")
	if ok, err := g.RecordUsage(context.Background(), -1); ok || err != nil {
		t.Errorf("RecordUsage(-1) = %v, %v; want false, nil", ok, err)
	}
}
