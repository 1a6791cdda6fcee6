package common

import (
	"errors"
	"fmt"

	"github.com/Freeeeeet/hallpass/internal/service"
)

// Общие ошибки для обработчиков
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrNotATeacher   = errors.New("user is not a teacher of this classroom")
	ErrNoClassroom   = errors.New("classroom is not selected")
	ErrNoMessage     = errors.New("no message in callback")
	ErrInvalidFormat = errors.New("invalid callback format")
)

// ErrorMessage возвращает пользовательское сообщение для ошибки
func ErrorMessage(err error) string {
	var conflict *service.CapacityConflictError

	switch {
	case errors.Is(err, ErrUserNotFound):
		return "❌ Пользователь не найден. Используйте /start"
	case errors.Is(err, ErrNotATeacher):
		return "❌ Эта функция доступна только учителю класса"
	case errors.Is(err, ErrNoClassroom):
		return "❌ Класс не выбран. Отсканируйте QR-код класса"
	case errors.Is(err, ErrNoMessage):
		return "❌ Ошибка обработки сообщения"
	case errors.Is(err, ErrInvalidFormat):
		return "❌ Неверный формат данных"

	case errors.As(err, &conflict):
		return fmt.Sprintf("❌ Ограничение уже стоит на месте «%s». Сначала снимите его", conflict.Conflicting.Name)
	case errors.Is(err, service.ErrValidation):
		return "❌ Не заполнены обязательные данные"
	case errors.Is(err, service.ErrNotEnrolled):
		return "❌ Вы не числитесь в этом классе"
	case errors.Is(err, service.ErrAlreadyCheckedOut):
		return "❌ Вы уже вышли. Сначала вернитесь: /in"
	case errors.Is(err, service.ErrNotCheckedOut):
		return "❌ Вы сейчас в классе"
	case errors.Is(err, service.ErrDestinationRequired):
		return "❌ Укажите, куда выходите"
	case errors.Is(err, service.ErrDestinationNotFound):
		return "❌ Место не найдено"
	case errors.Is(err, service.ErrEntryNotFound):
		return "❌ Запись в очереди не найдена"
	case errors.Is(err, service.ErrNameTaken):
		return "❌ Место с таким названием уже есть"
	case errors.Is(err, service.ErrInvalidAction):
		return "❌ Это действие сейчас недоступно"
	default:
		return "❌ Произошла ошибка"
	}
}
