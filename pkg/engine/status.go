package engine

import (
	"fmt"

	"github.com/SLever37/controlcredi/pkg/dateonly"
	"github.com/SLever37/controlcredi/pkg/models"
	"github.com/SLever37/controlcredi/pkg/money"
)

// ClassifyInstallment derives an installment's status from its current
// balances. Principal clearance is the sole paid condition and is
// checked first: an installment with interest still open but zero
// principal is PAID, and one with principal open is never PAID no
// matter what else was settled.
func ClassifyInstallment(inst *models.Installment, today dateonly.Date) models.InstallmentStatus {
	if money.IsCleared(inst.PrincipalRemaining) {
		return models.StatusPaid
	}
	if today.Sub(inst.EffectiveDueDate()) > 0 {
		return models.StatusLate
	}
	if inst.PaidTotal.IsPositive() {
		return models.StatusPartial
	}
	return models.StatusPending
}

// DescribeDue renders a human-readable delinquency label.
func DescribeDue(inst *models.Installment, today dateonly.Date) string {
	if inst.Status == models.StatusPaid {
		return "settled"
	}
	switch days := today.Sub(inst.EffectiveDueDate()); {
	case days == 0:
		return "due today"
	case days > 0:
		return fmt.Sprintf("%d days overdue", days)
	default:
		return "on time"
	}
}
