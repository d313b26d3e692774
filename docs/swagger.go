package docs

import "github.com/swaggo/swag"

// @title           mdcollab API
// @version         1.0
// @description     API for collaborative markdown editing with realtime sync

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token

// @tag.name Users
// @tag.description User management operations

// @tag.name Documents
// @tag.description Document management operations

// @tag.name Sharing
// @tag.description Document sharing and access control operations

// Register swagger info
func SwaggerInfo() *swag.Spec {
	return swag.Instance
}
