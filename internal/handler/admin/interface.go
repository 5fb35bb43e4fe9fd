package admin

import "github.com/gin-gonic/gin"

type IHandler interface {
	Login(c *gin.Context)
	ListOrders(c *gin.Context)
	GetOrder(c *gin.Context)
	ManualConfirm(c *gin.Context)
	Refund(c *gin.Context)
	CloseExpired(c *gin.Context)
	PendingOpens(c *gin.Context)
}
