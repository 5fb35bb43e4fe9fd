package health

import "github.com/gin-gonic/gin"

type IHandler interface {
	Healthz(c *gin.Context)
	Dependencies(c *gin.Context)
	Jobs(c *gin.Context)
}
