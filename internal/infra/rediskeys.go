package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "coffeeflow"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanTransitions — широковещательный канал зафиксированных переходов.
	// Слушают дашборды (live-обновление очередей) и ledger-мост.
	RedisChanTransitions = RedisNamespace + ":exports:transitions"
)

// GetExportChannel — персональный канал партии для подписки трекера.
func GetExportChannel(exportID string) string {
	return fmt.Sprintf("%s:exports:%s", RedisNamespace, exportID)
}
