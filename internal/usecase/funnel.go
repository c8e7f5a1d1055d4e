package usecase

import (
	"fmt"
	"strings"
)

// Stage — шаг воронки. Совпадает с фазами анкеты плюс финальный "заявка сохранена".
type Stage string

const StageLeadSaved Stage = "lead_saved"

type FunnelRepository interface {
	Hit(stage Stage, chatID int64) error
	Counts() map[Stage]int
}

type FunnelUsecase struct {
	repo  FunnelRepository
	order []Stage
}

func NewFunnelUsecase(repo FunnelRepository) *FunnelUsecase {
	return &FunnelUsecase{
		repo: repo,
		order: []Stage{
			Stage(PhaseChoosingService),
			Stage(PhaseCollectingName),
			Stage(PhaseCollectingCity),
			Stage(PhaseCollectingContact),
			Stage(PhaseCollectingDetails),
			StageLeadSaved,
		},
	}
}

// StageOf переводит результат обработки события в шаг воронки.
func StageOf(out Outcome) Stage {
	if out.Lead != nil {
		return StageLeadSaved
	}
	if out.Phase == PhaseIdle {
		return ""
	}
	return Stage(out.Phase)
}

func (u *FunnelUsecase) Reach(chatID int64, stage Stage) error {
	if stage == "" {
		return nil
	}
	return u.repo.Hit(stage, chatID)
}

func (u *FunnelUsecase) Chart() string {
	counts := u.repo.Counts()
	if len(counts) == 0 {
		return "Данных по воронке пока нет"
	}
	// база — первый шаг
	var base int
	if len(u.order) > 0 {
		base = counts[u.order[0]]
	}
	if base == 0 {
		for _, s := range u.order {
			if counts[s] > base {
				base = counts[s]
			}
		}
	}
	var prev int
	var b strings.Builder
	b.WriteString("Воронка по шагам:\n")
	for i, s := range u.order {
		c := counts[s]
		relPrev := 0
		if i == 0 {
			relPrev = 100
		} else if prev > 0 {
			relPrev = percent(c, prev)
		}
		fmt.Fprintf(&b, "- %s: %d | %3d%% от базового | %3d%% от пред. %s\n", stageLabel(s), c, percent(c, base), relPrev, bar20(c, base))
		prev = c
	}
	return b.String()
}

// GraphData возвращает метки и значения по порядку шагов для построения графика
func (u *FunnelUsecase) GraphData() ([]string, []int) {
	counts := u.repo.Counts()
	labels := make([]string, 0, len(u.order))
	values := make([]int, 0, len(u.order))
	for _, s := range u.order {
		labels = append(labels, stageLabel(s))
		values = append(values, counts[s])
	}
	return labels, values
}

func percent(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (100 * a) / b
}

func bar20(val, max int) string {
	if max <= 0 {
		return ""
	}
	filled := (20 * val) / max
	if filled < 0 {
		filled = 0
	}
	if filled > 20 {
		filled = 20
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", 20-filled) + "]"
}

func stageLabel(s Stage) string {
	switch s {
	case Stage(PhaseChoosingService):
		return "Услуга"
	case Stage(PhaseCollectingName):
		return "Имя"
	case Stage(PhaseCollectingCity):
		return "Город"
	case Stage(PhaseCollectingContact):
		return "Контакт"
	case Stage(PhaseCollectingDetails):
		return "Детали"
	case StageLeadSaved:
		return "Заявка"
	default:
		return string(s)
	}
}
