package fakeapi

import "github.com/prometheus/client_golang/prometheus"

var (
	otpIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "railauth_fakeapi_otp_issued_total",
		Help: "Total one-time passwords issued",
	})

	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railauth_fakeapi_logins_total",
			Help: "Total OTP verifications, by result",
		},
		[]string{"result"},
	)

	refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "railauth_fakeapi_token_refresh_total",
			Help: "Total refresh token redemptions, by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(otpIssuedTotal, loginsTotal, refreshTotal)
}
