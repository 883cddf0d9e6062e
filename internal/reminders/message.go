package reminders

import (
	"fmt"
	"strings"
	"time"
)

const (
	expiryDateLayout = "02/01/2006"

	templateToday    = "Olá %s! Seu plano %s vence hoje (%s). Renove agora para continuar assistindo sem interrupções."
	templateTomorrow = "Olá %s! Seu plano %s vence amanhã (%s). Renove para continuar assistindo sem interrupções."
	templateDays     = "Olá %s! Seu plano %s vence em %d dias (%s). Renove para continuar assistindo sem interrupções."
)

// ComposeMessage renders the customer-facing reminder text.
func ComposeMessage(customerName, planName string, days int, expiresAt time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	name := strings.TrimSpace(customerName)
	date := expiresAt.In(loc).Format(expiryDateLayout)
	switch days {
	case 0:
		return fmt.Sprintf(templateToday, name, planName, date)
	case 1:
		return fmt.Sprintf(templateTomorrow, name, planName, date)
	default:
		return fmt.Sprintf(templateDays, name, planName, days, date)
	}
}
