package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Concesionario-api/internal/application/dto"
	"github.com/jhoicas/Concesionario-api/pkg/jwt"
)

// RequireCompanyScope exige que el parámetro de ruta indicado coincida con la
// empresa del token. Los administradores pueden operar sobre cualquier empresa.
// Debe usarse DESPUÉS de AuthMiddleware.
func RequireCompanyScope(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		companyID := GetCompanyID(c)
		if companyID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Code:    "UNAUTHORIZED",
				Message: "company_id no encontrado en el token",
			})
		}
		if GetRole(c) == jwt.RoleAdmin {
			return c.Next()
		}
		if c.Params(param) != companyID {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Code:    "FORBIDDEN",
				Message: "la empresa indicada no corresponde al token",
			})
		}
		return c.Next()
	}
}

// canAccessCompany aplica la misma regla sobre recursos ya cargados.
func canAccessCompany(c *fiber.Ctx, companyID string) bool {
	return GetRole(c) == jwt.RoleAdmin || GetCompanyID(c) == companyID
}
