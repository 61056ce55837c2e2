package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/worknet/backend/internal/pkg/apperror"
)

// Константы валидации
const (
	MinPasswordLength    = 8
	MaxPasswordLength    = 128
	MinDisplayNameLength = 2
	MaxDisplayNameLength = 100
	MaxReasonLength      = 2000
	MaxMessageLength     = 5000
	MaxRequirementLength = 2000
	MaxFileNameLength    = 255
	MaxQuantity          = 1000
	MaxDeadlineExtension = 365
)

// ObjectID парсит строковый идентификатор в ObjectID.
// Ошибка формата — всегда VALIDATION_ERROR с именем поля.
func ObjectID(field, value string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(value))
	if err != nil {
		return primitive.NilObjectID, apperror.Validation(fmt.Sprintf("некорректный идентификатор в поле %s", field))
	}
	return oid, nil
}

// Price парсит цену и проверяет, что она неотрицательна.
func Price(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, apperror.Validation("поле price обязательно")
	}
	price, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, apperror.Validation("price должен быть десятичным числом")
	}
	if price.IsNegative() {
		return decimal.Zero, apperror.Validation("price не может быть отрицательным")
	}
	return price, nil
}

// Quantity проверяет количество единиц заказа.
func Quantity(value int) error {
	if value < 1 {
		return apperror.Validation("quantity должен быть не менее 1")
	}
	if value > MaxQuantity {
		return apperror.Validation(fmt.Sprintf("quantity должен быть не более %d", MaxQuantity))
	}
	return nil
}

// Required проверяет, что обязательное текстовое поле заполнено.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperror.Validation(fmt.Sprintf("поле %s обязательно", field))
	}
	return nil
}

// Length проверяет длину строки в рунах.
func Length(field, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return apperror.Validation(fmt.Sprintf("%s должен быть не менее %d символов", field, min))
	}
	if max > 0 && length > max {
		return apperror.Validation(fmt.Sprintf("%s должен быть не более %d символов", field, max))
	}
	return nil
}

// DeliveryDate парсит дату ожидаемой сдачи: RFC3339 либо YYYY-MM-DD.
// Возвращённое время всегда в UTC.
func DeliveryDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, apperror.Validation("поле expected_delivery обязательно")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, apperror.Validation("expected_delivery должен быть в формате RFC3339 или YYYY-MM-DD")
}

var emailRegex = regexp.MustCompile(`^[a-z0-9._+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)

// Email проверяет формат email.
func Email(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperror.Validation("email обязателен")
	}
	if len(email) > 254 || !emailRegex.MatchString(email) {
		return apperror.Validation("некорректный формат email")
	}
	return nil
}

// Password проверяет длину пароля.
func Password(password string) error {
	if len(password) < MinPasswordLength {
		return apperror.Validation(fmt.Sprintf("пароль должен быть не менее %d символов", MinPasswordLength))
	}
	if len(password) > MaxPasswordLength {
		return apperror.Validation(fmt.Sprintf("пароль должен быть не более %d символов", MaxPasswordLength))
	}
	return nil
}
