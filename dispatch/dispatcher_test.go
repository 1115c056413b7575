package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"lifeline/contact"
)

type fakeChannel struct {
	name string
	err  error

	mu    sync.Mutex
	sends []string
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Deliver(_ context.Context, phone, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sends = append(f.sends, phone)
	return nil
}

func (f *fakeChannel) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sends))
	copy(out, f.sends)
	return out
}

type hangingChannel struct{ name string }

func (h *hangingChannel) Name() string { return h.name }

func (h *hangingChannel) Deliver(ctx context.Context, _, _ string) error {
	// Ignores cancellation on purpose.
	time.Sleep(5 * time.Second)
	return nil
}

func TestFanOut_OrderedFallback(t *testing.T) {
	primary := &fakeChannel{name: "whatsapp", err: ErrChannelUnavailable}
	secondary := &fakeChannel{name: "sms"}
	d := NewDispatcher([]Channel{primary, secondary}, nil, "", nil)

	report := d.FanOut(context.Background(), []contact.EmergencyContact{
		{Name: "Lindi", Phone: "+27831110000"},
	}, "help")

	if report.Notified != 1 || report.Eligible != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Attempts[0].Channel != "sms" {
		t.Fatalf("expected fallback to sms, got %q", report.Attempts[0].Channel)
	}
	if len(secondary.sent()) != 1 {
		t.Fatalf("expected exactly one sms handoff, got %d", len(secondary.sent()))
	}
}

func TestFanOut_StopsAtFirstAvailableChannel(t *testing.T) {
	primary := &fakeChannel{name: "whatsapp"}
	secondary := &fakeChannel{name: "sms"}
	d := NewDispatcher([]Channel{primary, secondary}, nil, "", nil)

	d.FanOut(context.Background(), []contact.EmergencyContact{
		{Name: "Lindi", Phone: "+27831110000"},
	}, "help")

	if len(primary.sent()) != 1 {
		t.Fatalf("expected whatsapp handoff, got %d", len(primary.sent()))
	}
	if len(secondary.sent()) != 0 {
		t.Fatalf("fallback channel must not fire after a successful handoff")
	}
}

func TestFanOut_SkipsPhonelessContacts(t *testing.T) {
	ch := &fakeChannel{name: "sms"}
	d := NewDispatcher([]Channel{ch}, nil, "", nil)

	report := d.FanOut(context.Background(), []contact.EmergencyContact{
		{Name: "Reachable", Phone: "+27111"},
		{Name: "NoPhone", Phone: ""},
	}, "help")

	if report.Eligible != 1 {
		t.Fatalf("expected 1 eligible contact, got %d", report.Eligible)
	}
	if got := report.Summary(); got != "1 of 1 eligible contacts notified" {
		t.Fatalf("unexpected summary: %q", got)
	}
	if len(ch.sent()) != 1 || ch.sent()[0] != "+27111" {
		t.Fatalf("unexpected handoffs: %v", ch.sent())
	}
}

func TestFanOut_UnreachableRecipientDoesNotStopOthers(t *testing.T) {
	down := &fakeChannel{name: "whatsapp", err: ErrChannelUnavailable}
	d := NewDispatcher([]Channel{down}, nil, "", nil)

	report := d.FanOut(context.Background(), []contact.EmergencyContact{
		{Name: "A", Phone: "+27001"},
		{Name: "B", Phone: "+27002"},
	}, "help")

	if report.Eligible != 2 || report.Notified != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	for _, a := range report.Attempts {
		if a.Outcome != OutcomeUnreachable {
			t.Fatalf("expected unreachable outcome, got %+v", a)
		}
	}
}

func TestFanOut_HungChannelFallsThrough(t *testing.T) {
	hung := &hangingChannel{name: "whatsapp"}
	working := &fakeChannel{name: "sms"}
	d := NewDispatcher([]Channel{hung, working}, nil, "", nil).
		WithAttemptTimeout(50 * time.Millisecond)

	start := time.Now()
	report := d.FanOut(context.Background(), []contact.EmergencyContact{
		{Name: "Lindi", Phone: "+27831110000"},
	}, "help")

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("hung channel blocked fan-out for %v", elapsed)
	}
	if report.Notified != 1 || report.Attempts[0].Channel != "sms" {
		t.Fatalf("expected sms fallback after timeout, got %+v", report)
	}
}

func TestNotifyAuthority_UnavailableIsWarningNotFailure(t *testing.T) {
	contacts := &fakeChannel{name: "whatsapp"}
	authorityLine := &fakeChannel{name: "sms", err: ErrChannelUnavailable}
	d := NewDispatcher([]Channel{contacts}, []Channel{authorityLine}, "10111", nil)

	report := d.FanOut(context.Background(), []contact.EmergencyContact{
		{Name: "Lindi", Phone: "+27831110000"},
	}, "help")

	if report.AuthorityNotified {
		t.Fatalf("expected authority to be unreachable")
	}
	if report.Notified != 1 {
		t.Fatalf("contact dispatch must succeed regardless of authority channel: %+v", report)
	}
}

func TestNotifyAuthority_Success(t *testing.T) {
	line := &fakeChannel{name: "sms"}
	d := NewDispatcher(nil, []Channel{line}, "10111", nil)

	report := d.FanOut(context.Background(), nil, "help")
	if !report.AuthorityNotified {
		t.Fatalf("expected authority notified")
	}
	if got := line.sent(); len(got) != 1 || got[0] != "10111" {
		t.Fatalf("unexpected authority handoffs: %v", got)
	}
}

func TestURIChannels_Targets(t *testing.T) {
	opener := &recordingOpener{}
	ctx := context.Background()

	if err := WhatsApp(opener).Deliver(ctx, "+27 83 111 0000", "need help"); err != nil {
		t.Fatalf("whatsapp deliver: %v", err)
	}
	if err := SMS(opener).Deliver(ctx, "+27831110000", "need help"); err != nil {
		t.Fatalf("sms deliver: %v", err)
	}
	if err := Dialer(opener).Deliver(ctx, "10111", "ignored"); err != nil {
		t.Fatalf("dialer deliver: %v", err)
	}

	want := []string{
		"https://wa.me/27831110000?text=need+help",
		"sms:+27831110000?body=need+help",
		"tel:10111",
	}
	if len(opener.opened) != len(want) {
		t.Fatalf("unexpected handoffs: %v", opener.opened)
	}
	for i, uri := range want {
		if opener.opened[i] != uri {
			t.Fatalf("handoff %d: expected %q, got %q", i, uri, opener.opened[i])
		}
	}
}

type recordingOpener struct {
	opened []string
}

func (o *recordingOpener) Supports(_ context.Context, uri string) (bool, error) {
	return uri != "", nil
}

func (o *recordingOpener) Open(_ context.Context, uri string) error {
	o.opened = append(o.opened, uri)
	return nil
}
