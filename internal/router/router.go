package router

import (
	"net/http"

	"github.com/senyabanana/energy-bidding-service/internal/handlers"
)

func InitRoutes(bidHandler *handlers.BidHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/ping", handlers.PingHandler)

	mux.HandleFunc("/api/bids/submit", bidHandler.SubmitBid)
	mux.HandleFunc("/api/bids/display", bidHandler.FetchForDisplay)
	mux.HandleFunc("/api/bids/{infrastructureId}/list", bidHandler.ListInfrastructureBids)
	mux.HandleFunc("GET /api/bids/{bidId}/status", bidHandler.GetBidStatus)
	mux.HandleFunc("GET /api/bids/{bidId}/history", bidHandler.GetBidHistory)
	mux.HandleFunc("PUT /api/bids/{bidId}/retract", bidHandler.RetractBid)
	mux.HandleFunc("PUT /api/bids/{bidId}/clearing", bidHandler.RecordClearing)

	return mux
}
