package reminder

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRenderCannedKnownOffsets(t *testing.T) {
	amount := decimal.NewFromFloat(450.50)

	for _, offset := range []int{-3, -2, -1, 0, 1, 2} {
		msg, ok := RenderCanned(offset, "Maria Lopez Torres", amount, "H-101")
		if !ok {
			t.Fatalf("offset %d: expected a canned message", offset)
		}
		if !strings.Contains(msg, "Maria") {
			t.Errorf("offset %d: first name missing: %q", offset, msg)
		}
		if strings.Contains(msg, "Lopez") {
			t.Errorf("offset %d: canned messages use first name only: %q", offset, msg)
		}
		if !strings.Contains(msg, "S/ 450.50") {
			t.Errorf("offset %d: amount missing: %q", offset, msg)
		}
		if !strings.Contains(msg, "H-101") {
			t.Errorf("offset %d: room code missing: %q", offset, msg)
		}
	}
}

func TestRenderCannedUnknownOffset(t *testing.T) {
	for _, offset := range []int{-4, 3, 10} {
		if _, ok := RenderCanned(offset, "Jose", decimal.NewFromInt(500), "H-2"); ok {
			t.Errorf("offset %d should have no canned message", offset)
		}
	}
}

func TestRenderCannedWording(t *testing.T) {
	amount := decimal.NewFromInt(500)

	msg, _ := RenderCanned(-1, "Ana", amount, "H-5")
	if !strings.Contains(msg, "mañana") {
		t.Errorf("offset -1 should mention tomorrow: %q", msg)
	}

	msg, _ = RenderCanned(0, "Ana", amount, "H-5")
	if !strings.Contains(msg, "hoy") {
		t.Errorf("offset 0 should mention today: %q", msg)
	}

	msg, _ = RenderCanned(2, "Ana", amount, "H-5")
	if !strings.Contains(msg, "2 días de retraso") {
		t.Errorf("offset 2 should name the delay: %q", msg)
	}
}

func TestRenderCannedEmptyName(t *testing.T) {
	msg, ok := RenderCanned(0, "  ", decimal.NewFromInt(500), "H-1")
	if !ok {
		t.Fatal("expected a message")
	}
	if !strings.Contains(msg, "Inquilino") {
		t.Errorf("empty name should fall back to Inquilino: %q", msg)
	}
}

func TestRenderTemplate(t *testing.T) {
	template := "Hola {nombre}, debes {monto} por la habitación {habitacion} ({dias} días)."
	got := RenderTemplate(template, "Maria Lopez", decimal.NewFromFloat(450.5), "H-101", -2)

	want := "Hola Maria Lopez, debes 450.50 por la habitación H-101 (-2 días)."
	if got != want {
		t.Errorf("RenderTemplate = %q, want %q", got, want)
	}
}

func TestRenderTemplateNoPlaceholders(t *testing.T) {
	template := "Recordatorio de pago."
	got := RenderTemplate(template, "Maria", decimal.NewFromInt(500), "H-1", 0)
	if got != template {
		t.Errorf("template without placeholders changed: %q", got)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   decimal.Decimal
		want string
	}{
		{decimal.NewFromInt(500), "S/ 500.00"},
		{decimal.NewFromFloat(450.5), "S/ 450.50"},
		{decimal.NewFromFloat(1234.567), "S/ 1234.57"},
	}

	for _, tt := range tests {
		if got := FormatAmount(tt.in); got != tt.want {
			t.Errorf("FormatAmount(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
