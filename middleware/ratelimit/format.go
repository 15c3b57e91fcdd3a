// utilitários pequenos de formatação para headers e para a mensagem de 429.

package ratelimit

import (
	"fmt"
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

// retryAfterSeconds arredonda para cima: Retry-After só aceita segundos
// inteiros e arredondar para baixo faria o cliente voltar cedo demais.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

func windowLabel(d time.Duration) string {
	switch d {
	case 0, time.Minute:
		return "minute"
	case time.Second:
		return "second"
	case time.Hour:
		return "hour"
	}
	return d.String()
}

// RejectMessage é o texto devolvido no corpo do 429.
func RejectMessage(limit int, window time.Duration) string {
	if limit <= 0 {
		return "Rate limit exceeded."
	}
	return fmt.Sprintf("Rate limit exceeded. Maximum %d requests per %s allowed.", limit, windowLabel(window))
}
