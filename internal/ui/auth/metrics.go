package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики сессий и guard.
var (
	// refreshTotal — попытки молчаливого refresh access token.
	refreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cw_auth_refresh_total",
			Help: "Количество попыток refresh access token по результату",
		},
		[]string{"result"},
	)

	// guardOutcomesTotal — решения guard защищённых маршрутов.
	guardOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cw_auth_guard_outcomes_total",
			Help: "Количество решений guard по исходу",
		},
		[]string{"outcome"},
	)
)

// Значения лейбла result метрики cw_auth_refresh_total.
const (
	refreshResultSuccess = "success"
	refreshResultFailure = "failure"
)

// Значения лейбла outcome метрики cw_auth_guard_outcomes_total.
const (
	outcomeProceed         = "proceed"
	outcomeNoSession       = "no_session"
	outcomeRefreshFailed   = "refresh_failed"
	outcomeNotConseiller   = "not_conseiller"
	outcomeAlreadySignedIn = "already_connected"
)
