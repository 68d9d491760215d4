package network

import (
	"fmt"
	"log/slog"
	"net"
	"slices"
)

// GetLocalIPv4s はローカルマシンの非ループバックIPv4アドレスのリストを取得します
func GetLocalIPv4s() ([]net.IP, error) {
	localIPs := []net.IP{}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get interfaces: %w", err)
	}
	for _, i := range ifaces {
		// インターフェースがダウンしている、またはループバックの場合はスキップ
		if (i.Flags&net.FlagUp == 0) || (i.Flags&net.FlagLoopback != 0) {
			continue
		}
		addrs, err := i.Addrs()
		if err != nil {
			// エラーが発生しても他のインターフェースの処理を続ける
			slog.Warn("インターフェースのアドレス取得に失敗", "interface", i.Name, "err", err)
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			// IPv4 アドレスのみを対象とする
			if ip != nil && ip.To4() != nil {
				localIPs = append(localIPs, ip)
			}
		}
	}
	if len(localIPs) == 0 {
		slog.Warn("利用可能なローカルIPv4アドレスが見つかりません")
	}
	return localIPs, nil
}

// MulticastInterfaces はマルチキャストグループ参加の対象となるインターフェースを返す。
// names が空の場合は、稼働中・マルチキャスト対応・非ループバックの全インターフェース。
// names が指定された場合はその名前のものだけ（見つからない名前は警告して無視）。
func MulticastInterfaces(names []string) ([]net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get interfaces: %w", err)
	}

	eligible := make([]net.Interface, 0, len(ifaces))
	for _, i := range ifaces {
		if i.Flags&net.FlagUp == 0 || i.Flags&net.FlagLoopback != 0 {
			continue
		}
		if i.Flags&net.FlagMulticast == 0 {
			continue
		}
		if len(names) > 0 && !slices.Contains(names, i.Name) {
			continue
		}
		eligible = append(eligible, i)
	}

	for _, name := range names {
		found := false
		for _, i := range eligible {
			if i.Name == name {
				found = true
				break
			}
		}
		if !found {
			slog.Warn("指定されたマルチキャストインターフェースが見つかりません", "interface", name)
		}
	}

	if len(eligible) == 0 {
		slog.Warn("マルチキャスト対象のインターフェースが見つかりません")
	}
	return eligible, nil
}
