package reminder

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Canned WhatsApp messages keyed by day offset relative to the due date.
// Negative offsets are courteous advance reminders, zero is the "last day"
// notice, positive offsets name the delay and warn of contract consequences.
// Offsets outside {-3..2} have no canned message.

// RenderCanned returns the canned message for an offset, or false when the
// offset has no template. Canned messages address the tenant by first name
// and format the amount as a two-decimal currency string.
func RenderCanned(offset int, tenantName string, amount decimal.Decimal, roomCode string) (string, bool) {
	name := firstName(tenantName)
	monto := FormatAmount(amount)

	switch offset {
	case -3:
		return fmt.Sprintf(
			"Hola %s, te recordamos que en *3 días* vence tu pago de renta 🏠\n\n"+
				"📍 Habitación: %s\n"+
				"💰 Monto: %s\n\n"+
				"Por favor, realiza tu pago a tiempo para evitar inconvenientes.\n\n"+
				"¡Gracias por tu puntualidad! 😊",
			name, roomCode, monto), true
	case -2:
		return fmt.Sprintf(
			"Hola %s, te recordamos que en *2 días* vence tu pago de renta 🏠\n\n"+
				"📍 Habitación: %s\n"+
				"💰 Monto: %s\n\n"+
				"Te pedimos estar al día con tu pago para evitar inconvenientes.\n\n"+
				"Cualquier consulta, estamos a tu disposición 📞",
			name, roomCode, monto), true
	case -1:
		return fmt.Sprintf(
			"Hola %s, te recordamos que *mañana* vence tu pago de renta 🏠\n\n"+
				"📍 Habitación: %s\n"+
				"💰 Monto: %s\n\n"+
				"Por favor, realiza tu pago a tiempo para evitar cargos adicionales.\n\n"+
				"¡Muchas gracias! 🙏",
			name, roomCode, monto), true
	case 0:
		return fmt.Sprintf(
			"Hola %s, *hoy* es el último día para realizar tu pago de renta ⏰\n\n"+
				"📍 Habitación: %s\n"+
				"💰 Monto: %s\n\n"+
				"Por favor, regulariza cuanto antes para mantener tu contrato al día.\n\n"+
				"Agradecemos tu pronta respuesta 🙏",
			name, roomCode, monto), true
	case 1:
		return fmt.Sprintf(
			"Hola %s, tu pago de renta está *vencido* ⚠️\n\n"+
				"📍 Habitación: %s\n"+
				"💰 Monto: %s\n"+
				"📅 Retraso: 1 día\n\n"+
				"Por favor, regulariza lo antes posible para evitar cargos adicionales "+
				"o medidas según el contrato.\n\n"+
				"Esperamos tu pronta respuesta 📞",
			name, roomCode, monto), true
	case 2:
		return fmt.Sprintf(
			"Hola %s, tu pago de renta lleva *2 días de retraso* 🚨\n\n"+
				"📍 Habitación: %s\n"+
				"💰 Monto: %s\n"+
				"📅 Retraso: 2 días\n\n"+
				"Te solicitamos urgentemente ponerte al día. De no regularizar tu situación, "+
				"podrías estar sujeto a desalojo según lo establecido en tu contrato.\n\n"+
				"Por favor, comunícate con nosotros a la brevedad 📞⚠️",
			name, roomCode, monto), true
	default:
		return "", false
	}
}

// RenderTemplate substitutes the {nombre}, {monto}, {habitacion} and {dias}
// placeholders in an operator-supplied template. Custom templates use the
// tenant's full name and apply to any offset.
func RenderTemplate(template, tenantName string, amount decimal.Decimal, roomCode string, offset int) string {
	msg := template
	msg = strings.ReplaceAll(msg, "{nombre}", tenantName)
	msg = strings.ReplaceAll(msg, "{monto}", amount.StringFixed(2))
	msg = strings.ReplaceAll(msg, "{habitacion}", roomCode)
	msg = strings.ReplaceAll(msg, "{dias}", fmt.Sprintf("%d", offset))
	return msg
}

// FormatAmount renders a rent amount as Peruvian soles with two decimals.
func FormatAmount(amount decimal.Decimal) string {
	return "S/ " + amount.StringFixed(2)
}

func firstName(full string) string {
	fields := strings.Fields(strings.TrimSpace(full))
	if len(fields) == 0 {
		return "Inquilino"
	}
	return fields[0]
}
