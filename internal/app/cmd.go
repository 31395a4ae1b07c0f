package app

import (
	"fmt"

	"github.com/hitoshi/superkart/internal/config"
)

// Command はsuperkartのサブコマンド。
type Command string

const (
	// CommandServe はストアフロントのJSON APIを起動する。
	CommandServe Command = "serve"
	// CommandWorker は共有セッションストアの期限切れセッションを定期的に削除する。
	CommandWorker Command = "worker"
	// CommandMigrate はsessionsテーブルのマイグレーションを操作する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中のサーバーの/healthを確認する。
	// シェルのないdistrolessイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数からサブコマンドを返す。
// 引数が空または未知のサブコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// MigrateAction はmigrateサブコマンドの操作。
type MigrateAction string

const (
	// MigrateUp は未適用のマイグレーションをすべて適用する。
	MigrateUp MigrateAction = "up"
	// MigrateDown は直近のマイグレーションを1つ戻す。
	MigrateDown MigrateAction = "down"
	// MigrateVersion は適用済みのバージョンを表示する。
	MigrateVersion MigrateAction = "version"
)

// ParseMigrateAction は `migrate [up|down|version]` の操作を返す。省略時はMigrateUp。
func ParseMigrateAction(args []string) (MigrateAction, error) {
	if len(args) < 2 {
		return MigrateUp, nil
	}
	switch action := MigrateAction(args[1]); action {
	case MigrateUp, MigrateDown, MigrateVersion:
		return action, nil
	}
	return "", fmt.Errorf("unknown migrate action %q (want up, down or version)", args[1])
}

// checkSessionStore はサブコマンドが設定されたセッションストアで実行できるかを確認する。
// メモリストアの掃除はserveのプロセス内で行うため、workerは共有ストアを必要とする。
// sessionsテーブルはPostgreSQLにのみ存在する。
func (c Command) checkSessionStore(cfg *config.Config) error {
	switch c {
	case CommandWorker:
		if cfg.SessionStore == config.SessionStoreMemory {
			return fmt.Errorf("worker requires a shared session store (SESSION_STORE=postgres or redis)")
		}
	case CommandMigrate:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("migrate requires DATABASE_URL")
		}
	}
	return nil
}
