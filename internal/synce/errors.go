package synce

import "fmt"

// ErrorCode: класс ошибки конфигурационного API.
type ErrorCode uint8

const (
	CodeInvalidParameter ErrorCode = iota + 1
	CodeInvalidPort
	CodePortAlreadyNominated
	CodeNotSupported
	CodeSelectionNotAllowed
)

func (c ErrorCode) String() string {
	switch c {
	case CodeInvalidParameter:
		return "invalid parameter"
	case CodeInvalidPort:
		return "invalid port"
	case CodePortAlreadyNominated:
		return "port already nominated"
	case CodeNotSupported:
		return "not supported"
	case CodeSelectionNotAllowed:
		return "selection not allowed"
	}
	return fmt.Sprintf("error(%d)", uint8(c))
}

// Error: ошибка сеттера. Сеттер, вернувший Error, состояние не менял.
type Error struct {
	Code ErrorCode
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("synce: %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("synce: %s: %s: %s", e.Op, e.Code, e.Msg)
}

// Is сравнивает по коду; PortAlreadyNominated считается и InvalidPort.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Msg != "" {
		return false
	}
	if t.Code == e.Code {
		return true
	}
	return t.Code == CodeInvalidPort && e.Code == CodePortAlreadyNominated
}

// Сентинелы для errors.Is.
var (
	ErrInvalidParameter     = &Error{Code: CodeInvalidParameter}
	ErrInvalidPort          = &Error{Code: CodeInvalidPort}
	ErrPortAlreadyNominated = &Error{Code: CodePortAlreadyNominated}
	ErrNotSupported         = &Error{Code: CodeNotSupported}
	ErrSelectionNotAllowed  = &Error{Code: CodeSelectionNotAllowed}
)

func newError(code ErrorCode, op, format string, args ...interface{}) *Error {
	return &Error{Code: code, Op: op, Msg: fmt.Sprintf(format, args...)}
}
