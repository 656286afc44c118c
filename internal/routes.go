package internal

import (
	"net/http"

	"kwatch/internal/controllers"
	"kwatch/internal/providers"
	"kwatch/internal/structures"
)

func InitRoutes(apiController *controllers.ApiController, conf *structures.Config) providers.RouterProviderInterface {
	routers := providers.NewRouterProvider()

	routers.Post("/monitors", http.HandlerFunc(apiController.CreateMonitor))
	routers.Get("/monitors", http.HandlerFunc(apiController.ListMonitors))
	routers.Get("/monitor", http.HandlerFunc(apiController.GetMonitor))
	routers.Post("/monitor/reset", http.HandlerFunc(apiController.ResetMonitor))
	routers.Get("/results", http.HandlerFunc(apiController.GetResults))
	routers.Get("/notifications", http.HandlerFunc(apiController.GetNotifications))
	routers.Post("/cycle", http.HandlerFunc(apiController.RunCycle))
	routers.Post("/check", http.HandlerFunc(apiController.CheckNow))
	routers.Post("/payments/confirmed", http.HandlerFunc(apiController.ConfirmPayment))
	routers.Get("/allocations", http.HandlerFunc(apiController.GetAllocations))
	return routers
}
