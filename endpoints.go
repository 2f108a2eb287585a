package xapi

import "fmt"

// ServerTime is the venue clock at the moment a getServerTime response
// was produced.
type ServerTime struct {
	Time       int64  `json:"time"` // unix millis
	TimeString string `json:"timeString"`
}

// GetVersion returns the venue's protocol version string.
func (s *Session) GetVersion() (string, error) {
	resp, err := s.Execute("getVersion", nil)
	if err != nil {
		return "", err
	}
	if err := resp.Err(); err != nil {
		return "", err
	}
	var rd struct {
		Version string `json:"version"`
	}
	if err := resp.Decode(&rd); err != nil {
		return "", err
	}
	return rd.Version, nil
}

// GetServerTime returns the venue clock.
func (s *Session) GetServerTime() (ServerTime, error) {
	resp, err := s.Execute("getServerTime", nil)
	if err != nil {
		return ServerTime{}, err
	}
	if err := resp.Err(); err != nil {
		return ServerTime{}, err
	}
	var st ServerTime
	if err := resp.Decode(&st); err != nil {
		return ServerTime{}, err
	}
	return st, nil
}

// GetSymbol returns the venue's record for one symbol. Fields are
// venue-defined and passed through untyped.
func (s *Session) GetSymbol(symbol string) (Record, error) {
	resp, err := s.Execute("getSymbol", map[string]any{"symbol": symbol})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("getSymbol %s: %w", symbol, err)
	}
	var rec Record
	if err := resp.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetAllSymbols returns every symbol record the account can see.
func (s *Session) GetAllSymbols() ([]Record, error) {
	resp, err := s.Execute("getAllSymbols", nil)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var recs []Record
	if err := resp.Decode(&recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// StreamTickPrices subscribes to tick updates for one symbol.
func (s *Session) StreamTickPrices(symbol string) (*Subscription, error) {
	return s.Subscribe("TickPrices", map[string]any{"symbol": symbol})
}

// StreamCandles subscribes to one-minute candles for one symbol.
func (s *Session) StreamCandles(symbol string) (*Subscription, error) {
	return s.Subscribe("Candles", map[string]any{"symbol": symbol})
}

// StreamBalance subscribes to account balance updates.
func (s *Session) StreamBalance() (*Subscription, error) {
	return s.Subscribe("Balance", nil)
}

// StreamNews subscribes to venue news items.
func (s *Session) StreamNews() (*Subscription, error) {
	return s.Subscribe("News", nil)
}

// StreamTrades subscribes to the account's trade updates.
func (s *Session) StreamTrades() (*Subscription, error) {
	return s.Subscribe("Trades", nil)
}

// StreamProfits subscribes to open-position profit updates.
func (s *Session) StreamProfits() (*Subscription, error) {
	return s.Subscribe("Profits", nil)
}

// StreamTradeStatus subscribes to order execution status updates.
func (s *Session) StreamTradeStatus() (*Subscription, error) {
	return s.Subscribe("TradeStatus", nil)
}
