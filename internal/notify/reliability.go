package notify

import (
	"context"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
)

// reliableSender оборачивает доставку уведомлений в Retries + Circuit Breaker.
// Если Redis лежит, предохранитель открывается и перестает жечь горутины
// на заведомо мертвом соединении; переходы при этом продолжают фиксироваться.
type reliableSender struct {
	send func(ctx context.Context, msg TransitionMessage) error
	cb   *gobreaker.CircuitBreaker
}

func newReliableSender(send func(ctx context.Context, msg TransitionMessage) error) *reliableSender {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "transition-broadcast",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Более 5 ошибок подряд — открываемся (перестаем слать)
			return counts.ConsecutiveFailures > 5
		},
	})

	return &reliableSender{send: send, cb: cb}
}

func (s *reliableSender) Send(msg TransitionMessage) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Attempts(3),
			retry.Delay(100*time.Millisecond),
		)

		retryErr := r.Do(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return s.send(ctx, msg)
		})

		return nil, retryErr
	})
	return err
}
