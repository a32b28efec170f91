// 命令行客户端：向评分服务发请求并打印事件流，便于联调与脚本化
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"scout-api/internal/protocol"
)

var (
	baseURL  string
	natsURL  string
	linesArg string
	popFloor int64
	timeout  time.Duration
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scoutctl",
		Short: "Scout 评分服务命令行客户端",
	}
	cmd.PersistentFlags().StringVar(&baseURL, "base", "http://127.0.0.1:8080/api", "HTTP API 基础地址")
	cmd.PersistentFlags().StringVar(&natsURL, "nats", "", "走 NATS 而非 HTTP（nats://...）")
	cmd.PersistentFlags().StringVar(&linesArg, "lines", "", "线集 JSON 文件路径，- 表示标准输入")
	cmd.PersistentFlags().Int64Var(&popFloor, "pop-floor", 0, "人口下限")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 120*time.Second, "请求超时")

	cmd.AddCommand(&cobra.Command{
		Use:   "ready",
		Short: "查询执行层状态",
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(protocol.Request{Type: protocol.TypeInit, ID: uuid.NewString()})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "category <career|love|health|home|wellbeing|wealth>",
		Short: "单类别榜单",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := loadLines()
			if err != nil {
				return err
			}
			return send(protocol.Request{
				Type:            protocol.TypeScoutCategory,
				ID:              uuid.NewString(),
				Category:        args[0],
				Lines:           lines,
				PopulationFloor: popFloor,
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "overall",
		Short: "跨类综合榜单",
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := loadLines()
			if err != nil {
				return err
			}
			return send(protocol.Request{
				Type:            protocol.TypeScoutOverall,
				ID:              uuid.NewString(),
				Lines:           lines,
				PopulationFloor: popFloor,
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "batch <category,category,...>",
		Short: "多类别 + 综合",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := loadLines()
			if err != nil {
				return err
			}
			return send(protocol.Request{
				Type:            protocol.TypeScoutBatch,
				ID:              uuid.NewString(),
				Categories:      strings.Split(args[0], ","),
				Lines:           lines,
				PopulationFloor: popFloor,
			})
		},
	})
	return cmd
}

func loadLines() ([]protocol.Line, error) {
	if linesArg == "" {
		return nil, fmt.Errorf("--lines is required")
	}
	var data []byte
	var err error
	if linesArg == "-" {
		data, err = readAll(os.Stdin)
	} else {
		data, err = os.ReadFile(linesArg)
	}
	if err != nil {
		return nil, err
	}
	var lines []protocol.Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("parse lines: %w", err)
	}
	return lines, nil
}

func readAll(f *os.File) ([]byte, error) {
	var buf bytes.Buffer
	_, err := buf.ReadFrom(f)
	return buf.Bytes(), err
}

func send(req protocol.Request) error {
	if natsURL != "" {
		return sendNATS(req)
	}
	return sendHTTP(req)
}

// sendHTTP：POST 到 /scout 并逐行转印 NDJSON 事件
func sendHTTP(req protocol.Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	cli := &http.Client{Timeout: timeout}
	resp, err := cli.Post(baseURL+"/scout", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 1<<20), 16<<20)
	for sc.Scan() {
		fmt.Println(sc.Text())
	}
	return sc.Err()
}

// sendNATS：请求应答模式，进度事件另行订阅打印
func sendNATS(req protocol.Request) error {
	nc, err := nats.Connect(natsURL, nats.Name("scoutctl"))
	if err != nil {
		return err
	}
	defer nc.Close()

	sub, err := nc.Subscribe("scout.progress."+req.ID, func(m *nats.Msg) {
		fmt.Println(string(m.Data))
	})
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	msg, err := nc.Request("scout.req", body, timeout)
	if err != nil {
		return err
	}
	fmt.Println(string(msg.Data))
	return nil
}
