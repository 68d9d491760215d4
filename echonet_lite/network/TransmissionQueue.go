package network

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// MulticastSettleDelay はグループ離脱から送信までの待ち時間。
// 離脱がOSに反映されるのを待ってから自プロセス宛のループバックなしで送信する。
const MulticastSettleDelay = 500 * time.Millisecond

// SendResult は1回の送信要求の結果。IP は実際に使われた宛先。
type SendResult struct {
	IP  net.IP
	Err error
}

// PacketTransport は TransmissionQueue が送信に使うコラボレータ。
// 実装は UDPConnection。
type PacketTransport interface {
	SendTo(dstIP net.IP, data []byte) (int, error)
	JoinMulticastGroup(iface net.Interface) error
	LeaveMulticastGroup(iface net.Interface) error
	MulticastIP() net.IP
	MulticastInterfaces() []net.Interface
}

type queueState int

const (
	stateIdle queueState = iota
	stateSending
)

type sendRequest struct {
	ip      net.IP
	payload []byte
	done    chan SendResult
}

// TransmissionQueue は送信要求をFIFOで1件ずつソケットに流します。
// マルチキャスト宛の送信は毎回、グループ離脱→待機→送信→再参加で挟む。
// 同時に送信中の要求は常に1件だけで、順序は投入順のまま保たれる。
// 投入済みの要求の取り消しはできず、キューとしてのタイムアウトも持たない
// （トランスポートが固まると後続も止まる）。
type TransmissionQueue struct {
	transport   PacketTransport
	settleDelay time.Duration

	mu      sync.Mutex
	pending []sendRequest
	state   queueState
}

// NewTransmissionQueue は transport を占有する送信キューを作る
func NewTransmissionQueue(transport PacketTransport) *TransmissionQueue {
	return &TransmissionQueue{
		transport:   transport,
		settleDelay: MulticastSettleDelay,
	}
}

// Enqueue は送信要求をキューに積む。ip が nil の場合はマルチキャストグループ宛になる。
// 返されるチャンネルには、この要求自身の送信が完了した時に一度だけ結果が届く。
// 複数の goroutine から同時に呼び出せる。
func (q *TransmissionQueue) Enqueue(ip net.IP, payload []byte) <-chan SendResult {
	if ip == nil {
		ip = q.transport.MulticastIP()
	}
	done := make(chan SendResult, 1)

	q.mu.Lock()
	q.pending = append(q.pending, sendRequest{ip: ip, payload: payload, done: done})
	if q.state == stateIdle {
		q.state = stateSending
		go q.dispatchLoop()
	}
	q.mu.Unlock()

	return done
}

// dispatchLoop はキューの先頭から1件ずつ送信する。キューが空になったら
// idle に戻って終了する。常に1つしか走らない。
func (q *TransmissionQueue) dispatchLoop() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.state = stateIdle
			q.mu.Unlock()
			return
		}
		req := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.transmit(req)
	}
}

// transmit は1件の送信を実行し、要求元に結果を届ける。
// 送信エラーはその要求だけに返り、キューは次の要求へ進む。
func (q *TransmissionQueue) transmit(req sendRequest) {
	multicast := req.ip.Equal(q.transport.MulticastIP())

	if multicast {
		// グループ離脱・再参加はベストエフォート。失敗しても送信は止めない。
		for _, iface := range q.transport.MulticastInterfaces() {
			if err := q.transport.LeaveMulticastGroup(iface); err != nil {
				slog.Debug("マルチキャストグループ離脱に失敗", "interface", iface.Name, "err", err)
			}
		}
		time.Sleep(q.settleDelay)
	}

	_, err := q.transport.SendTo(req.ip, req.payload)

	if multicast {
		for _, iface := range q.transport.MulticastInterfaces() {
			if err := q.transport.JoinMulticastGroup(iface); err != nil {
				slog.Debug("マルチキャストグループ再参加に失敗", "interface", iface.Name, "err", err)
			}
		}
	}

	if err != nil {
		req.done <- SendResult{IP: req.ip, Err: fmt.Errorf("パケット送信に失敗: %w", err)}
		return
	}
	req.done <- SendResult{IP: req.ip}
}
