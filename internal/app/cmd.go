package app

import (
	"io"

	"github.com/urfave/cli/v2"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は延滞チェックワーカーを起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandCreateAdmin は初期管理者ユーザーを作成することを示す。
	CommandCreateAdmin Command = "create-admin"
	// CommandImportBooks はCSVから蔵書を一括登録することを示す。
	CommandImportBooks Command = "import-books"
)

// Build information, set via ldflags.
var Version = "dev"

// NewCLI はbookmanのCLIアプリケーションを生成する。
// サブコマンド省略時はserveとして動作する。
func NewCLI(w io.Writer) *cli.App {
	return &cli.App{
		Name:      "bookman",
		Usage:     "図書館の蔵書貸出管理サーバー",
		Version:   Version,
		Writer:    w,
		ErrWriter: w,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML設定ファイルのパス",
				EnvVars: []string{"BOOKMAN_CONFIG"},
			},
		},
		Action: func(c *cli.Context) error {
			return runServe(c.Context, w, c.String("config"))
		},
		Commands: []*cli.Command{
			{
				Name:  string(CommandServe),
				Usage: "APIサーバーを起動する",
				Action: func(c *cli.Context) error {
					return runServe(c.Context, w, c.String("config"))
				},
			},
			{
				Name:  string(CommandWorker),
				Usage: "延滞チェックワーカーを起動する",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "metrics-port",
						Usage:   "メトリクス公開用のポート（空の場合は公開しない）",
						EnvVars: []string{"WORKER_METRICS_PORT"},
						Value:   "9091",
					},
				},
				Action: func(c *cli.Context) error {
					return runWorker(c.Context, w, c.String("config"), c.String("metrics-port"))
				},
			},
			{
				Name:  string(CommandMigrate),
				Usage: "データベースマイグレーションを適用する",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "rollback",
						Usage: "指定したステップ数だけマイグレーションを巻き戻す",
					},
				},
				Action: func(c *cli.Context) error {
					return runMigrate(w, c.String("config"), c.Int("rollback"))
				},
			},
			{
				Name:  string(CommandHealthcheck),
				Usage: "ローカルのAPIサーバーの/healthを確認する",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "port",
						EnvVars: []string{"SERVER_PORT"},
						Value:   "8080",
					},
				},
				// 軽量サブコマンドのため、設定読み込みとDB接続をスキップする
				Action: func(c *cli.Context) error {
					return runHealthcheck(c.String("port"))
				},
			},
			{
				Name:  string(CommandCreateAdmin),
				Usage: "管理者ユーザーを作成する",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{
						Name:     "password",
						EnvVars:  []string{"BOOKMAN_ADMIN_PASSWORD"},
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					return runCreateAdmin(c.Context, w, c.String("config"), adminInput{
						Email:    c.String("email"),
						Name:     c.String("name"),
						Password: c.String("password"),
					})
				},
			},
			{
				Name:  string(CommandImportBooks),
				Usage: "CSVファイルから蔵書を一括登録する",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "title,author,isbn,description列を持つCSVファイル",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					return runImportBooks(c.Context, w, c.String("config"), c.String("file"))
				},
			},
		},
	}
}
