// errors.go — доменные ошибки Link Gateway.
// Разделение на постоянные (NotFound, Gone, TooLarge) и временные
// (TransientError) определяет поведение retry и HTTP-статусы.
package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound — токен не найден в реестре или истёк.
	ErrNotFound = errors.New("токен не найден")

	// ErrGone — файл безвозвратно недоступен в источнике:
	// сообщение удалено, медиа отсутствует или заменено другим документом.
	// Не подлежит retry.
	ErrGone = errors.New("файл недоступен в источнике")

	// ErrTooLarge — размер файла превышает настроенный лимит.
	ErrTooLarge = errors.New("размер файла превышает лимит")
)

// TransientError — временная ошибка при обращении к Telegram.
// Операция может быть повторена после паузы.
type TransientError struct {
	// Op — операция, при которой произошла ошибка (resolve, fetch)
	Op string
	// RetryAfter — пауза, предписанная сервером (FLOOD_WAIT).
	// 0, если сервер не указал паузу.
	RetryAfter time.Duration
	// Err — исходная ошибка
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("временная ошибка %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient проверяет, является ли ошибка временной.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
