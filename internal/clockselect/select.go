package clockselect

import "github.com/shiwa/timecard-mini/synce/internal/ssm"

// Candidate: отфильтрованная (hold-off/WTR) тройка одного слота. Индекс 0 в наборе -
// внутренний генератор с приоритетом 0.
type Candidate struct {
	QL       ssm.QL // уже приведён к легальному набору опции
	Raw      ssm.QL // до приведения; нужен для проверки FAIL в неревертивном режиме
	SF       bool
	Priority uint
}

// Election: арбитраж источников по качеству и приоритету (G.781: QL, затем priority).
type Election struct {
	active int
}

// NewElection создаёт выборщик без активного источника.
func NewElection() *Election {
	return &Election{active: -1}
}

// Revertive выбирает лучший источник: без SF, с QL строго лучше текущего победителя,
// при равном QL с меньшим приоритетом. Начальный победитель: внутренний генератор (индекс 0).
// exists: есть хотя бы один внешний кандидат с QL или без SF; по нему выбирается
// holdover или free-run, когда победил генератор.
func (e *Election) Revertive(c []Candidate) (sel int, exists bool) {
	if len(c) == 0 {
		e.active = -1
		return -1, false
	}
	qlSel, prioSel := c[0].QL, c[0].Priority
	for i := 1; i < len(c); i++ {
		if c[i].QL != ssm.QLNone || !c[i].SF {
			exists = true
		}
		if c[i].SF || c[i].QL == ssm.QLNone {
			continue
		}
		if c[i].QL < qlSel || (c[i].QL == qlSel && c[i].Priority < prioSel) {
			sel, qlSel, prioSel = i, c[i].QL, c[i].Priority
		}
	}
	e.active = sel
	return sel, exists
}

// NonRevertive оставляет текущий источник cur, пока он не FAIL и без SF; иначе: как Revertive.
// kept сообщает, что выбор не пересчитывался.
func (e *Election) NonRevertive(c []Candidate, cur int) (sel int, exists, kept bool) {
	if cur > 0 && cur < len(c) && c[cur].Raw != ssm.QLFail && !c[cur].SF {
		e.active = cur
		return cur, true, true
	}
	sel, exists = e.Revertive(c)
	return sel, exists, false
}

// Active возвращает индекс последнего выбора (-1 до первого вызова).
func (e *Election) Active() int {
	return e.active
}
