package main

import (
	"github.com/blocktank/channel-backend/internal/server"
)

// @title Channel Backend API
// @version 1.0
// @description Lightning channel marketplace order lifecycle service.
// @BasePath /api/v1
func main() {
	server.Init()
}
