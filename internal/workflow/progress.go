package workflow

import (
	"math"

	"github.com/xela07ax/coffee-export-workflow/internal/domain"
)

// Calculator — чистый детерминированный маппинг статус -> проценты [0,100].
// Дашборды рисуют по нему прогресс-бары, ничего не зная о бизнес-правилах.
type Calculator struct {
	reg   *Registry
	total int
}

func NewCalculator(reg *Registry) *Calculator {
	return &Calculator{reg: reg, total: reg.maxProgressWeight()}
}

// ProgressOf возвращает процент прохождения конвейера.
//
// Статусы отклонения наследуют вес pending-статуса своей фазы: отклонение —
// восстановимая пауза, накопленный прогресс не сгорает. Единственное
// исключение — CANCELLED: попытка отброшена, прогресс ноль.
// Идентичный вход всегда дает идентичный выход, результат можно кэшировать.
func (c *Calculator) ProgressOf(status domain.Status) (int, error) {
	def, err := c.reg.Lookup(status)
	if err != nil {
		return 0, err
	}
	if def.ProgressWeight == 0 {
		return 0, nil
	}
	return int(math.Round(100 * float64(def.ProgressWeight) / float64(c.total))), nil
}

// StageProgress — строка сводки для трекера этапов на дашборде.
type StageProgress struct {
	Stage   Stage `json:"stage"`
	Reached bool  `json:"reached"`
	Current bool  `json:"current"`
}

// Summary возвращает сводку по фазам для текущего статуса:
// какие фазы пройдены, какая активна.
func (c *Calculator) Summary(status domain.Status) ([]StageProgress, error) {
	def, err := c.reg.Lookup(status)
	if err != nil {
		return nil, err
	}

	out := make([]StageProgress, 0, 15)
	for _, st := range c.reg.StagesInOrder() {
		out = append(out, StageProgress{
			Stage:   st,
			Reached: def.Stage.Order > 0 && st.Order <= def.Stage.Order,
			Current: st.Order == def.Stage.Order,
		})
	}
	return out, nil
}
