package handlers

import (
	"github.com/gin-gonic/gin"
)

func respond(c *gin.Context, status int, reason string, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"reason":  reason,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}
