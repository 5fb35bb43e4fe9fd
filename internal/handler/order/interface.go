package order

import "github.com/gin-gonic/gin"

type IHandler interface {
	CreateOrder(c *gin.Context)
	GetOrder(c *gin.Context)
	ClaimChannel(c *gin.Context)
	RequestRenewal(c *gin.Context)
	ZeroConfQuote(c *gin.Context)
}
