package apihttp

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tradebot/internal/bot"
	"tradebot/internal/executor"
	"tradebot/internal/ledger/model"
)

func accountIDParam(c *gin.Context) (int64, bool) {
	raw := c.Query("accountId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "accountId must be a positive integer"})
		return 0, false
	}
	return id, true
}

func symbolParam(c *gin.Context) (string, bool) {
	symbol := strings.TrimSpace(c.Query("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return "", false
	}
	return symbol, true
}

func intParam(c *gin.Context, name string, def int) (int, bool) {
	raw := c.DefaultQuery(name, strconv.Itoa(def))
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be an integer"})
		return 0, false
	}
	return v, true
}

func modeParam(c *gin.Context) (model.Mode, bool) {
	raw := strings.ToUpper(strings.TrimSpace(c.DefaultQuery("mode", string(model.ModeTrading))))
	switch model.Mode(raw) {
	case model.ModeTrading, model.ModeTraining:
		return model.Mode(raw), true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be TRADING or TRAINING"})
		return "", false
	}
}

func (s *Server) handleBuy(c *gin.Context) {
	s.handleManualTrade(c, true)
}

func (s *Server) handleSell(c *gin.Context) {
	s.handleManualTrade(c, false)
}

func (s *Server) handleManualTrade(c *gin.Context, buy bool) {
	accountID, ok := accountIDParam(c)
	if !ok {
		return
	}
	symbol, ok := symbolParam(c)
	if !ok {
		return
	}
	price, err := decimal.NewFromString(c.Query("price"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must be a decimal number"})
		return
	}
	mode, ok := modeParam(c)
	if !ok {
		return
	}

	var outcome executor.Outcome
	if buy {
		outcome, err = s.exec.Buy(c.Request.Context(), accountID, symbol, price, mode)
	} else {
		outcome, err = s.exec.Sell(c.Request.Context(), accountID, symbol, price, mode)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

func (s *Server) handleStep(c *gin.Context) {
	accountID, ok := accountIDParam(c)
	if !ok {
		return
	}
	symbol, ok := symbolParam(c)
	if !ok {
		return
	}
	signal, err := s.bot.RunTradingStep(c.Request.Context(), accountID, symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signal": signal})
}

func (s *Server) handleTrain(c *gin.Context) {
	accountID, ok := accountIDParam(c)
	if !ok {
		return
	}
	symbol, ok := symbolParam(c)
	if !ok {
		return
	}
	limit, ok := intParam(c, "limit", 200)
	if !ok {
		return
	}
	offset, ok := intParam(c, "offset", 0)
	if !ok {
		return
	}
	trades, err := s.bot.RunTraining(c.Request.Context(), accountID, symbol, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tradesExecuted": trades})
}

func (s *Server) handleTrainStep(c *gin.Context) {
	accountID, ok := accountIDParam(c)
	if !ok {
		return
	}
	symbol, ok := symbolParam(c)
	if !ok {
		return
	}
	limit, ok := intParam(c, "limit", 200)
	if !ok {
		return
	}
	index, ok := intParam(c, "index", 0)
	if !ok {
		return
	}
	offset, ok := intParam(c, "offset", 0)
	if !ok {
		return
	}
	result, err := s.bot.RunTrainingStep(c.Request.Context(), accountID, symbol, limit, index, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleTrainStepCandles(c *gin.Context) {
	var req struct {
		AccountID int64            `json:"accountId" binding:"required"`
		Symbol    string           `json:"symbol" binding:"required"`
		Index     int              `json:"index"`
		Candles   []bot.ClosePoint `json:"candles" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.bot.RunTrainingStepWithCandles(c.Request.Context(), req.AccountID, req.Symbol, req.Candles, req.Index)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleAccountCreate(c *gin.Context) {
	id, err := s.store.CreateAccount(c.Request.Context(), s.startingCash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "cash_balance": s.startingCash})
}

func (s *Server) handleAccountReset(c *gin.Context) {
	accountID, ok := accountIDParam(c)
	if !ok {
		return
	}
	if err := s.store.ResetAccount(c.Request.Context(), accountID, s.startingCash); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) handleAccount(c *gin.Context) {
	accountID, ok := accountIDParam(c)
	if !ok {
		return
	}
	acc, err := s.store.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (s *Server) handlePortfolio(c *gin.Context) {
	accountID, ok := accountIDParam(c)
	if !ok {
		return
	}
	positions, err := s.store.ListPositions(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, positions)
}

func (s *Server) handleTrades(c *gin.Context) {
	accountID, ok := accountIDParam(c)
	if !ok {
		return
	}
	limit, ok := intParam(c, "limit", 100)
	if !ok {
		return
	}
	trades, err := s.store.ListTrades(c.Request.Context(), accountID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) handleMarketCandles(c *gin.Context) {
	symbol, ok := symbolParam(c)
	if !ok {
		return
	}
	interval := c.DefaultQuery("interval", "1m")
	limit, ok := intParam(c, "limit", 100)
	if !ok {
		return
	}
	offset, ok := intParam(c, "offset", 0)
	if !ok {
		return
	}
	candles, err := s.prices.Candles(c.Request.Context(), symbol, interval, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, candles)
}
