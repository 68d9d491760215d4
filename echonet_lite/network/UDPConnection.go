package network

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// UDPConnection は UDP ソケットとマルチキャストグループ参加状態を管理します。
// グループ参加状態はプロセス全体で共有する資源であり、送信側では
// TransmissionQueue だけがこの接続を通じて操作する。
type UDPConnection struct {
	UdpConn     *net.UDPConn
	packetConn  *ipv4.PacketConn // グループ参加・離脱の操作用
	LocalAddr   *net.UDPAddr
	localIPs    []net.IP // ローカルインターフェースのIPリスト
	Port        int
	multicastIP net.IP          // マルチキャストグループアドレス
	interfaces  []net.Interface // グループ参加対象のインターフェース
	mu          sync.RWMutex
}

// CreateUDPConnection は IPv4 の unicast と multicast を送受信できるソケットを作ります。
// ip が nil の場合はワイルドカード listen。multicastIP はIPv4マルチキャストアドレス必須。
// ifaceNames が空の場合はマルチキャスト対応の全インターフェースでグループに参加する。
// IPv6 はエラーになります。
func CreateUDPConnection(ctx context.Context, ip net.IP, port int, multicastIP net.IP, ifaceNames []string) (*UDPConnection, error) {
	if ip != nil && ip.To4() == nil {
		return nil, fmt.Errorf("IPv6 not supported for unicast ip")
	}
	if multicastIP == nil || multicastIP.To4() == nil {
		return nil, fmt.Errorf("IPv6 not supported for multicastIP")
	}
	if !multicastIP.IsMulticast() {
		return nil, fmt.Errorf("multicastIP is not a multicast address")
	}

	bindIP := ip
	if bindIP == nil || bindIP.IsUnspecified() {
		bindIP = net.IPv4zero
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: bindIP, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to ListenUDP: %w", err)
	}

	// ReadDeadline 設定
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Time{})
	}

	interfaces, err := MulticastInterfaces(ifaceNames)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	// ローカルのIPv4アドレスを取得（自送信パケット除外用）
	localIPs, err := GetLocalIPv4s()
	if err != nil {
		slog.Warn("ローカルIPアドレスの取得に失敗", "err", err)
		localIPs = []net.IP{} // エラー時も空スライスで続行
	}
	listenAddrIP := conn.LocalAddr().(*net.UDPAddr).IP
	if listenAddrIP.To4() != nil && !listenAddrIP.IsUnspecified() {
		isAlreadyAdded := false
		for _, lip := range localIPs {
			if lip.Equal(listenAddrIP) {
				isAlreadyAdded = true
				break
			}
		}
		if !isAlreadyAdded {
			localIPs = append(localIPs, listenAddrIP)
		}
	}

	udpConn := &UDPConnection{
		UdpConn:     conn,
		packetConn:  ipv4.NewPacketConn(conn),
		LocalAddr:   conn.LocalAddr().(*net.UDPAddr),
		localIPs:    localIPs,
		Port:        port,
		multicastIP: multicastIP,
		interfaces:  interfaces,
	}

	// 受信できるように各インターフェースでグループに参加しておく。
	// 参加はベストエフォートで、失敗しても起動は続行する。
	for _, iface := range interfaces {
		if err := udpConn.JoinMulticastGroup(iface); err != nil {
			slog.Warn("マルチキャストグループ参加に失敗", "interface", iface.Name, "err", err)
		}
	}

	return udpConn, nil
}

// MulticastIP はこの接続のマルチキャストグループアドレスを返す
func (c *UDPConnection) MulticastIP() net.IP {
	return c.multicastIP
}

// MulticastInterfaces はグループ参加対象のインターフェースを返す
func (c *UDPConnection) MulticastInterfaces() []net.Interface {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interfaces
}

// JoinMulticastGroup は指定インターフェースでマルチキャストグループに参加する
func (c *UDPConnection) JoinMulticastGroup(iface net.Interface) error {
	return c.packetConn.JoinGroup(&iface, &net.UDPAddr{IP: c.multicastIP})
}

// LeaveMulticastGroup は指定インターフェースでマルチキャストグループから離脱する
func (c *UDPConnection) LeaveMulticastGroup(iface net.Interface) error {
	return c.packetConn.LeaveGroup(&iface, &net.UDPAddr{IP: c.multicastIP})
}

// SendTo は指定先にデータを送信します
func (c *UDPConnection) SendTo(dstIP net.IP, data []byte) (int, error) {
	return c.UdpConn.WriteTo(data, &net.UDPAddr{IP: dstIP, Port: c.Port})
}

// isSelfPacket は指定されたアドレスが自身のいずれかのローカルIPとポートから送信されたものかを確認します
func (c *UDPConnection) isSelfPacket(src *net.UDPAddr) bool {
	if src == nil {
		return false
	}
	if src.Port != c.Port {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, localIP := range c.localIPs {
		if src.IP.Equal(localIP) {
			return true
		}
	}
	return false
}

// bufferPool は受信バッファのプールです
var bufferPool = sync.Pool{
	New: func() interface{} { return make([]byte, 1500) },
}

// Receive は UDP パケットを受信し、送信元アドレスとデータを返します。
// 自送信パケットを除外し、コンテキストキャンセルに対応します。
func (c *UDPConnection) Receive(ctx context.Context) ([]byte, *net.UDPAddr, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.UdpConn.SetReadDeadline(deadline)
	} else {
		_ = c.UdpConn.SetReadDeadline(time.Time{})
	}

	type result struct {
		data []byte
		addr *net.UDPAddr
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		buf := bufferPool.Get().([]byte)
		defer bufferPool.Put(buf)
		n, addr, err := c.UdpConn.ReadFrom(buf)
		if err != nil {
			ch <- result{nil, nil, err}
			return
		}
		src := addr.(*net.UDPAddr)
		if c.isSelfPacket(src) {
			ch <- result{nil, nil, nil}
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		ch <- result{data, src, nil}
	}()

	select {
	case <-ctx.Done():
		_ = c.UdpConn.SetReadDeadline(time.Now())
		<-ch
		return nil, nil, ctx.Err()
	case res := <-ch:
		return res.data, res.addr, res.err
	}
}

// Close はソケットを閉じます
func (c *UDPConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.UdpConn.Close()
}
