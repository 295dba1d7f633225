package crud

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes exposes the CRUD actions as RPC-style endpoints:
// POST /api/crud/:entity/:action with a JSON body.
func RegisterRoutes(app *fiber.App, ctl *Controller, middleware ...fiber.Handler) {
	api := app.Group("/api/crud", middleware...)
	api.Post("/:entity/:action", handleAction(ctl))
}

func handleAction(ctl *Controller) fiber.Handler {
	return func(c *fiber.Ctx) error {
		params := map[string]any{}
		if body := c.Body(); len(body) > 0 {
			if err := json.Unmarshal(body, &params); err != nil {
				return renderError(c, ctl, BadRequestError("", "request body must be a JSON object"))
			}
		}

		ctx := c.UserContext()
		entity := c.Params("entity")
		action := c.Params("action")

		var out map[string]any
		var err error
		switch action {
		case ActionCreate:
			out, err = ctl.Create(ctx, entity, params)
		case ActionGet:
			out, err = ctl.Get(ctx, entity, params)
		case ActionList:
			out, err = ctl.List(ctx, entity, params)
		case ActionUpdate:
			out, err = ctl.Update(ctx, entity, params)
		case ActionBatchUpdate:
			out, err = ctl.BatchUpdate(ctx, entity, params)
		case ActionRemove:
			out, err = ctl.Remove(ctx, entity, params)
		case ActionGetNewRecordValues:
			out, err = ctl.GetNewRecordValues(ctx, entity, params)
		default:
			err = BadRequestError("", "unknown action: "+action)
		}
		if err != nil {
			return renderError(c, ctl, err)
		}
		return c.JSON(out)
	}
}

func renderError(c *fiber.Ctx, ctl *Controller, err error) error {
	status, body := ExceptionResponse(err, ctl.cfg.IsProd())
	return c.Status(status).JSON(body)
}
