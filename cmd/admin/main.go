package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"careerResume/internal/account"
	"careerResume/internal/config"
	"careerResume/internal/database"
	"careerResume/internal/errcode"
)

// admin 为无法自助注册的场景开通账号。数据库连接与 API 共用环境变量。
func main() {
	email := flag.String("email", "", "账号邮箱（必填）")
	fullName := flag.String("full-name", "", "姓名（可选）")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(*email, *fullName); err != nil {
		logger.Error("provision account failed", slog.String("email", *email), slog.Any("error", err))
		os.Exit(1)
	}
}

func run(email, fullName string) error {
	if email == "" {
		return errors.New("missing required flag: --email")
	}

	dbCfg, err := config.LoadDatabase()
	if err != nil {
		return fmt.Errorf("load database config: %w", err)
	}
	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, password, err := account.NewService(db).Provision(ctx, email, fullName)
	switch {
	case errors.Is(err, errcode.ErrConflict):
		return fmt.Errorf("account %q already exists", account.NormalizeEmail(email))
	case err != nil:
		return err
	}

	fmt.Println("已创建账号，首次登录后必须修改密码：")
	fmt.Printf("  邮箱:     %s\n", user.Email)
	fmt.Printf("  初始密码: %s\n", password)
	fmt.Println("初始密码只显示这一次。")
	return nil
}
