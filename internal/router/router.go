// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/idlabstudio/idlab-backend/internal/config"
	"github.com/idlabstudio/idlab-backend/internal/handlers"
	"github.com/idlabstudio/idlab-backend/internal/i18n"
	"github.com/idlabstudio/idlab-backend/internal/metrics"
	"github.com/idlabstudio/idlab-backend/internal/middleware"
	"github.com/idlabstudio/idlab-backend/internal/services"
	"github.com/idlabstudio/idlab-backend/internal/utils"
)

const version = "1.0.0"

func Initialize(svcs *services.Services, cfg *config.Config) *gin.Engine {
	// Initialize handlers
	authHandler := handlers.NewAuthHandler(svcs.Auth)
	licenseRequestHandler := handlers.NewLicenseRequestHandler(svcs.License)
	licenseHandler := handlers.NewLicenseHandler(svcs.License)
	paymentHandler := handlers.NewPaymentHandler(svcs.Payment)
	approvalHandler := handlers.NewApprovalHandler(svcs.Approval)
	approvalLinkHandler := handlers.NewApprovalLinkHandler(svcs.Approval, cfg.Brand)
	adminHandler := handlers.NewAdminHandler(svcs.Admin)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(allowedOrigins(cfg)...))
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.GeneralRateLimit())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"version":   version,
			"languages": i18n.GetSupportedLanguages(),
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/login", authHandler.Login)
		}

		// License request routes (public)
		licenseRequests := v1.Group("/license-requests")
		{
			licenseRequests.POST("", licenseRequestHandler.SubmitRequest)
			licenseRequests.POST("/payment-proof", middleware.UploadRateLimit(), licenseRequestHandler.UploadPaymentProof)
		}

		// Approval links from e-mail (public, HTML)
		approvalLinks := v1.Group("/approvals")
		approvalLinks.Use(middleware.LinkRateLimit())
		{
			approvalLinks.GET("/approve", approvalLinkHandler.Approve)
			approvalLinks.GET("/reject", approvalLinkHandler.RejectForm)
			approvalLinks.POST("/reject", approvalLinkHandler.Reject)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.GET("/stats", adminHandler.GetDashboardStats)
			admin.GET("/email-errors", adminHandler.GetEmailErrors)

			// License request review
			adminRequests := admin.Group("/license-requests")
			{
				adminRequests.GET("", licenseRequestHandler.ListRequests)
				adminRequests.GET("/:id", licenseRequestHandler.GetRequest)
				adminRequests.GET("/:id/payment-proof", licenseRequestHandler.GetPaymentProof)
				adminRequests.PUT("/:id/approve", licenseRequestHandler.ApproveRequest)
				adminRequests.PUT("/:id/reject", licenseRequestHandler.RejectRequest)
			}

			// Payment management
			adminPayments := admin.Group("/payments")
			{
				adminPayments.GET("", paymentHandler.ListPayments)
				adminPayments.POST("", paymentHandler.CreatePayment)
				adminPayments.GET("/:id", paymentHandler.GetPayment)
				adminPayments.PUT("/:id/approve", paymentHandler.ApprovePayment)
				adminPayments.PUT("/:id/reject", paymentHandler.RejectPayment)
				adminPayments.POST("/:id/resend", paymentHandler.ResendEmail)
			}

			// License management
			adminLicenses := admin.Group("/licenses")
			{
				adminLicenses.GET("", licenseHandler.ListLicenses)
				adminLicenses.GET("/:id", licenseHandler.GetLicense)
				adminLicenses.PUT("/:id/deactivate", licenseHandler.DeactivateLicense)
			}

			// Approvals
			adminApprovals := admin.Group("/approvals")
			{
				adminApprovals.GET("", approvalHandler.ListApprovals)
				adminApprovals.POST("", approvalHandler.CreateApproval)
				adminApprovals.GET("/:id", approvalHandler.GetApproval)
				adminApprovals.PUT("/:id/decide", approvalHandler.DecideApproval)
			}
		}
	}

	// Static file serving (for development)
	if cfg.Environment == "development" {
		r.Static("/uploads", services.LocalUploadDir)
	}

	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.Frontend.BaseURL == "" {
		return nil
	}
	return []string{cfg.Frontend.BaseURL}
}
