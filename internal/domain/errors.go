package domain

import "errors"

// Терминальная таксономия отказов движка. Ни одна из этих ошибок не
// ретраится внутри компонента; каждая мапится на свой HTTP-класс
// на границе API (404/403/400/409/500).
var (
	// ErrNotFound — партия с таким ID не существует.
	ErrNotFound = errors.New("export record not found")

	// ErrForbidden — запрошенное ребро недоступно этой роли из текущего
	// статуса. Ожидаемый отказ, не баг.
	ErrForbidden = errors.New("transition not permitted for role")

	// ErrInvalidArgument — некорректный запрос, например отклонение без причины.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict — версия записи устарела: параллельный переход успел раньше.
	// Ретрай, если нужен, остается на совести вызывающего.
	ErrConflict = errors.New("concurrent modification conflict")

	// ErrUnknownStatus — статус отсутствует в реестре. Признак поврежденных
	// данных или битой конфигурации, не восстановимое состояние.
	ErrUnknownStatus = errors.New("unknown status")

	// ErrUnknownRole — роль не зарегистрирована в конфигурации.
	ErrUnknownRole = errors.New("unknown role")

	// ErrWorkflowConfiguration — дефект самого набора правил
	// (например, цикл автоматических переходов).
	ErrWorkflowConfiguration = errors.New("workflow configuration error")
)
