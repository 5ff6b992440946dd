// Package copytrader runs a paper-trading follower over the scan
// loop's profit estimates. All fills are simulated against a fixed
// entry price; nothing is ever submitted on chain.
package copytrader

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"wallet-radar/internal/storage"
)

const (
	// InitialBalance seeds the simulated book, in SOL
	InitialBalance = 10.0
	// slippagePct is applied to every simulated entry
	slippagePct = 0.5
	// feePct is charged on both legs of a trade
	feePct = 0.1

	// minPositionSol is the smallest position the book opens
	minPositionSol = 0.1
	// closeTrigger closes open positions when a followed wallet
	// books a loss past this threshold
	closeTrigger = -0.1

	exitReasonWalletSold = "wallet_sold"
)

// Position is one simulated trade
type Position struct {
	ID             int64    `json:"id"`
	Wallet         string   `json:"wallet"`
	AlertTimestamp float64  `json:"alert_timestamp"`
	AlertProfit    float64  `json:"alert_profit"`
	AlertSignature string   `json:"alert_signature"`
	EntryPriceSol  float64  `json:"entry_price_sol"`
	EntryAmountSol float64  `json:"entry_amount_sol"`
	EntryFee       float64  `json:"entry_fee"`
	Status         string   `json:"status"`
	ExitTimestamp  *float64 `json:"exit_timestamp,omitempty"`
	ExitPriceSol   *float64 `json:"exit_price_sol,omitempty"`
	ExitAmountSol  *float64 `json:"exit_amount_sol,omitempty"`
	ExitFee        *float64 `json:"exit_fee,omitempty"`
	ExitSignature  *string  `json:"exit_signature,omitempty"`
	PnlSol         *float64 `json:"pnl_sol,omitempty"`
	PnlPct         *float64 `json:"pnl_pct,omitempty"`
}

// Balance is the simulated book state
type Balance struct {
	TotalSol      float64 `json:"total_sol"`
	LockedSol     float64 `json:"locked_sol"`
	AvailableSol  float64 `json:"available_sol"`
	TotalPnlSol   float64 `json:"total_pnl_sol"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
}

// PortfolioSummary is the API view of the book
type PortfolioSummary struct {
	Balance            Balance    `json:"balance"`
	OpenPositionsCount int        `json:"open_positions_count"`
	OpenPositions      []Position `json:"open_positions"`
	UnrealizedPnlSol   float64    `json:"unrealized_pnl_sol"`
	TotalValueSol      float64    `json:"total_value_sol"`
	WinRate            float64    `json:"win_rate"`
}

// Trader holds the simulated book. Safe for concurrent use.
type Trader struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time

	// ProfitThreshold gates new positions; mirrors the alert threshold
	ProfitThreshold float64
}

// NewTrader opens the book database and seeds the balance row
func NewTrader(path string, profitThreshold float64) (*Trader, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("copytrader open: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			wallet TEXT NOT NULL,
			alert_timestamp REAL NOT NULL,
			alert_profit REAL NOT NULL,
			alert_signature TEXT NOT NULL,
			entry_price_sol REAL NOT NULL,
			entry_amount_sol REAL NOT NULL,
			entry_fee REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'open',
			exit_timestamp REAL,
			exit_price_sol REAL,
			exit_amount_sol REAL,
			exit_fee REAL,
			exit_signature TEXT,
			pnl_sol REAL,
			pnl_pct REAL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS balance (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			total_sol REAL NOT NULL DEFAULT 10.0,
			locked_sol REAL NOT NULL DEFAULT 0.0,
			available_sol REAL NOT NULL DEFAULT 10.0,
			total_pnl_sol REAL NOT NULL DEFAULT 0.0,
			total_trades INTEGER NOT NULL DEFAULT 0,
			winning_trades INTEGER NOT NULL DEFAULT 0,
			losing_trades INTEGER NOT NULL DEFAULT 0,
			last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("copytrader schema: %w", err)
		}
	}

	if _, err := db.Exec(
		`INSERT OR IGNORE INTO balance (id, total_sol, locked_sol, available_sol) VALUES (1, ?, 0.0, ?)`,
		InitialBalance, InitialBalance,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("copytrader balance seed: %w", err)
	}

	return &Trader{db: db, now: time.Now, ProfitThreshold: profitThreshold}, nil
}

// Close closes the book database
func (t *Trader) Close() error {
	return t.db.Close()
}

// OnEstimate follows one estimated batch: a loss past the close
// trigger exits all open positions on the wallet, a profit at or
// above the alert threshold opens a new one. Fits the scan engine's
// estimate hook.
func (t *Trader) OnEstimate(wallet string, profitSol float64, signature, venue, signalType string) {
	if profitSol < closeTrigger {
		exitPrice := 1.0 * (1.0 + profitSol/10.0)
		for _, pos := range t.OpenPositions(wallet) {
			pnl, err := t.ClosePosition(pos.ID, exitPrice, signature, exitReasonWalletSold)
			if err != nil {
				log.Warn().Err(err).Int64("position_id", pos.ID).Msg("copy trade close failed")
				continue
			}
			log.Info().
				Int64("position_id", pos.ID).
				Str("wallet", wallet).
				Float64("pnl", pnl).
				Msg("copy trade closed")
		}
		return
	}

	if profitSol >= t.ProfitThreshold && signature != "" {
		id, err := t.openFromAlert(wallet, profitSol, signature)
		if err != nil {
			log.Warn().Err(err).Str("wallet", wallet).Msg("copy trade open failed")
			return
		}
		if id > 0 {
			log.Info().Int64("position_id", id).Str("wallet", wallet).Msg("copy trade opened")
		}
	}
}

// openFromAlert sizes a position by the detected profit: bigger
// detected gains commit a larger share of the available balance.
func (t *Trader) openFromAlert(wallet string, alertProfit float64, signature string) (int64, error) {
	sizePct := 10.0
	switch {
	case alertProfit >= 5.0:
		sizePct = 20.0
	case alertProfit >= 2.0:
		sizePct = 15.0
	}
	return t.OpenPosition(wallet, alertProfit, signature, 1.0, sizePct)
}

// OpenPosition books a simulated entry. Returns 0 when the balance
// cannot support the position.
func (t *Trader) OpenPosition(wallet string, alertProfit float64, signature string, entryPrice, sizePct float64) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bal, err := t.balance()
	if err != nil {
		return 0, err
	}
	if bal.AvailableSol < minPositionSol {
		log.Debug().Float64("available", bal.AvailableSol).Msg("copy trade balance too low")
		return 0, nil
	}

	size := bal.AvailableSol * (sizePct / 100.0)
	if limit := bal.AvailableSol * 0.5; size > limit {
		size = limit
	}
	if size < minPositionSol {
		size = minPositionSol
	}

	slippage := size * (slippagePct / 100.0)
	entryFee := size * (feePct / 100.0)
	actualEntry := size - slippage - entryFee
	if actualEntry < 0.01 {
		return 0, nil
	}

	res, err := t.db.Exec(
		`INSERT INTO positions (wallet, alert_timestamp, alert_profit, alert_signature,
			entry_price_sol, entry_amount_sol, entry_fee, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 'open')`,
		wallet, float64(t.now().UnixNano())/1e9, alertProfit, signature,
		entryPrice, actualEntry, entryFee,
	)
	if err != nil {
		return 0, fmt.Errorf("open position: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := t.updateBalance(bal.LockedSol+size, bal.AvailableSol-size, 0, nil); err != nil {
		return 0, err
	}
	return id, nil
}

// ClosePosition books a simulated exit at the given price and settles
// the realized PnL into the balance. Returns the PnL in SOL.
func (t *Trader) ClosePosition(id int64, exitPrice float64, signature, reason string) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var entryAmount, entryPrice float64
	err := t.db.QueryRow(
		`SELECT entry_amount_sol, entry_price_sol FROM positions WHERE id = ? AND status = 'open'`, id,
	).Scan(&entryAmount, &entryPrice)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("position %d not open", id)
	}
	if err != nil {
		return 0, err
	}

	exitAmount := entryAmount * (exitPrice / entryPrice)
	exitFee := exitAmount * (feePct / 100.0)
	actualExit := exitAmount - exitFee

	pnl := actualExit - entryAmount
	var pnlPct float64
	if entryAmount > 0 {
		pnlPct = pnl / entryAmount * 100.0
	}

	if _, err := t.db.Exec(
		`UPDATE positions
		 SET status = ?, exit_timestamp = ?, exit_price_sol = ?, exit_amount_sol = ?,
		     exit_fee = ?, exit_signature = ?, pnl_sol = ?, pnl_pct = ?
		 WHERE id = ?`,
		reason, float64(t.now().UnixNano())/1e9, exitPrice, actualExit,
		exitFee, signature, pnl, pnlPct, id,
	); err != nil {
		return 0, fmt.Errorf("close position: %w", err)
	}

	bal, err := t.balance()
	if err != nil {
		return 0, err
	}
	isWin := pnl > 0
	if err := t.updateBalance(bal.LockedSol-entryAmount, bal.AvailableSol+actualExit, pnl, &isWin); err != nil {
		return 0, err
	}
	return pnl, nil
}

// OpenPositions lists open positions, newest alert first. An empty
// wallet lists all of them.
func (t *Trader) OpenPositions(wallet string) []Position {
	query := `SELECT id, wallet, alert_timestamp, alert_profit, alert_signature,
		entry_price_sol, entry_amount_sol, entry_fee, status
		FROM positions WHERE status = 'open'`
	args := []any{}
	if wallet != "" {
		query += ` AND wallet = ?`
		args = append(args, wallet)
	}
	query += ` ORDER BY alert_timestamp DESC`

	rows, err := t.db.Query(query, args...)
	if err != nil {
		log.Warn().Err(err).Msg("open positions query failed")
		return nil
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.ID, &p.Wallet, &p.AlertTimestamp, &p.AlertProfit,
			&p.AlertSignature, &p.EntryPriceSol, &p.EntryAmountSol, &p.EntryFee, &p.Status); err != nil {
			log.Warn().Err(err).Msg("open positions scan failed")
			return out
		}
		out = append(out, p)
	}
	return out
}

// Balance returns the current simulated balance
func (t *Trader) Balance() (Balance, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance()
}

func (t *Trader) balance() (Balance, error) {
	var b Balance
	err := t.db.QueryRow(
		`SELECT total_sol, locked_sol, available_sol, total_pnl_sol,
			total_trades, winning_trades, losing_trades FROM balance WHERE id = 1`,
	).Scan(&b.TotalSol, &b.LockedSol, &b.AvailableSol, &b.TotalPnlSol,
		&b.TotalTrades, &b.WinningTrades, &b.LosingTrades)
	if err == sql.ErrNoRows {
		return Balance{TotalSol: InitialBalance, AvailableSol: InitialBalance}, nil
	}
	return b, err
}

func (t *Trader) updateBalance(locked, available, pnlDelta float64, isWin *bool) error {
	bal, err := t.balance()
	if err != nil {
		return err
	}

	total := bal.TotalSol + pnlDelta
	totalPnl := bal.TotalPnlSol + pnlDelta
	trades, wins, losses := bal.TotalTrades, bal.WinningTrades, bal.LosingTrades
	if isWin != nil {
		trades++
		if *isWin {
			wins++
		} else {
			losses++
		}
	}

	_, err = t.db.Exec(
		`UPDATE balance
		 SET total_sol = ?, locked_sol = ?, available_sol = ?, total_pnl_sol = ?,
		     total_trades = ?, winning_trades = ?, losing_trades = ?,
		     last_updated = CURRENT_TIMESTAMP
		 WHERE id = 1`,
		total, locked, available, totalPnl, trades, wins, losses,
	)
	return err
}

// Portfolio summarizes the book for the API
func (t *Trader) Portfolio() (PortfolioSummary, error) {
	bal, err := t.Balance()
	if err != nil {
		return PortfolioSummary{}, err
	}

	open := t.OpenPositions("")
	limited := open
	if len(limited) > 10 {
		limited = limited[:10]
	}

	var winRate float64
	if bal.TotalTrades > 0 {
		winRate = float64(bal.WinningTrades) / float64(bal.TotalTrades) * 100.0
	}

	return PortfolioSummary{
		Balance:            bal,
		OpenPositionsCount: len(open),
		OpenPositions:      limited,
		TotalValueSol:      bal.TotalSol,
		WinRate:            winRate,
	}, nil
}
