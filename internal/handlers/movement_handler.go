package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mroshb/rallypoint/internal/middleware"
	"github.com/mroshb/rallypoint/internal/services"
	"github.com/mroshb/rallypoint/pkg/errors"
)

const idempotencyHeader = "Idempotency-Key"

// bind decodes and validates a request body. The Idempotency-Key header fills in a
// missing body key.
func bind(c echo.Context, req interface{}, key *string) error {
	if err := c.Bind(req); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "malformed request body")
	}
	if key != nil && *key == "" {
		*key = c.Request().Header.Get(idempotencyHeader)
	}
	return c.Validate(req)
}

func (h *HandlerManager) SendMission(c echo.Context) error {
	var req SendMissionRequest
	if err := bind(c, &req, &req.IdempotencyKey); err != nil {
		return err
	}
	in, err := req.toService(middleware.AccountID(c))
	if err != nil {
		return err
	}

	res, err := h.Movements.SendMission(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, MissionResponse{Movement: res.Movement, Warnings: res.Warnings})
}

func (h *HandlerManager) SendWave(c echo.Context) error {
	var req SendWaveRequest
	if err := bind(c, &req, &req.IdempotencyKey); err != nil {
		return err
	}
	in, err := req.toService(middleware.AccountID(c))
	if err != nil {
		return err
	}

	res, err := h.Waves.SendWaveGroup(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *HandlerManager) RecallReinforcements(c echo.Context) error {
	var req RecallRequest
	if err := bind(c, &req, &req.IdempotencyKey); err != nil {
		return err
	}

	ret, err := h.Movements.RecallReinforcements(c.Request().Context(), services.RecallRequest{
		FromVillageID:  req.FromVillageID,
		ToVillageID:    req.ToVillageID,
		AccountID:      middleware.AccountID(c),
		Units:          req.Units,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"movement": ret})
}

func (h *HandlerManager) CancelMovement(c echo.Context) error {
	m, err := h.Movements.CancelMovement(c.Request().Context(), c.Param("id"), middleware.AccountID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"movement": m})
}

func (h *HandlerManager) GetMovement(c echo.Context) error {
	m, err := h.Movements.GetMovement(c.Request().Context(), c.Param("id"), middleware.AccountID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"movement": m})
}

func (h *HandlerManager) ListVillageMovements(c echo.Context) error {
	villageID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || villageID == 0 {
		return errors.New(errors.ErrCodeValidation, "invalid village id")
	}
	var q ListMovementsQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "malformed query")
	}
	if err := c.Validate(&q); err != nil {
		return err
	}

	moves, err := h.Movements.ListMovements(c.Request().Context(), services.MovementQuery{
		AccountID: middleware.AccountID(c),
		VillageID: uint(villageID),
		Direction: q.Direction,
		Status:    q.Status,
		Mission:   q.Mission,
		Limit:     q.Limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"movements": moves})
}

func (h *HandlerManager) GetReport(c echo.Context) error {
	report, err := h.Movements.GetReport(c.Request().Context(), c.Param("id"), middleware.AccountID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"report": report})
}

func (h *HandlerManager) ListReports(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			return errors.New(errors.ErrCodeValidation, "limit must be between 1 and 500")
		}
		limit = n
	}
	reports, err := h.Movements.ListReports(c.Request().Context(), middleware.AccountID(c), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"reports": reports})
}
