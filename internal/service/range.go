// range.go — разбор заголовка Range.
//
// Поддерживается единственная форма bytes=... При нескольких диапазонах
// обслуживается только первый: multipart/byteranges не отдаём.
package service

import (
	"errors"
	"strconv"
	"strings"
)

// errUnsatisfiableRange — диапазон не пересекается с ресурсом (416).
var errUnsatisfiableRange = errors.New("диапазон вне границ ресурса")

// errMalformedRange — синтаксически некорректный заголовок (416).
var errMalformedRange = errors.New("некорректный заголовок Range")

// byteRange — запрошенный диапазон, обе границы включительно.
type byteRange struct {
	start int64
	end   int64
}

func (r byteRange) length() int64 {
	return r.end - r.start + 1
}

// parseRange разбирает заголовок Range для ресурса размером size.
// header не пустой. Возвращает errUnsatisfiableRange или
// errMalformedRange, обе ситуации клиент получает как 416.
func parseRange(header string, size int64) (byteRange, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return byteRange{}, errMalformedRange
	}

	// Несколько диапазонов: берём первый
	spec := strings.TrimPrefix(header, prefix)
	if i := strings.IndexByte(spec, ','); i >= 0 {
		spec = spec[:i]
	}
	spec = strings.TrimSpace(spec)

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return byteRange{}, errMalformedRange
	}

	// Суффиксная форма bytes=-N: последние N байт
	if startStr == "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return byteRange{}, errMalformedRange
		}
		if size == 0 {
			return byteRange{}, errUnsatisfiableRange
		}
		start := size - n
		if start < 0 {
			start = 0
		}
		return byteRange{start: start, end: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return byteRange{}, errMalformedRange
	}
	if start >= size {
		return byteRange{}, errUnsatisfiableRange
	}

	// Открытая форма bytes=N-: до конца файла
	if endStr == "" {
		return byteRange{start: start, end: size - 1}, nil
	}

	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return byteRange{}, errMalformedRange
	}
	// Конец за границей ресурса усекается, это валидный запрос
	if end >= size {
		end = size - 1
	}

	return byteRange{start: start, end: end}, nil
}
