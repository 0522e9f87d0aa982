package main

import (
	"flag"
	"fmt"
	"math/big"
	"os"
	"sort"
	"time"

	"github.com/holiman/uint256"

	"plasma/block/transactions"
	"plasma/config"
	"plasma/db"
	"plasma/logs"
	"plasma/settlement"
	"plasma/transaction"
	"plasma/types"
	"plasma/utils"
)

func main() {
	// 1. 解析命令行参数
	var (
		dataPath   = flag.String("data", "", "database directory (overrides config)")
		runMode    = flag.String("mode", "demo", "run mode: demo|inspect")
		configFile = flag.String("config", "", "config file path")
		amount     = flag.String("amount", "1.5", "deposit amount used by demo")
		carolKey   = flag.String("carol-key", "", "hex private key of the exiting owner in demo (random if empty)")
	)
	flag.Parse()

	// 2. 加载配置
	cfg, err := config.LoadFromFile(*configFile)
	if err != nil {
		logs.Error("load config: %v", err)
		os.Exit(1)
	}
	if *dataPath != "" {
		cfg.Database.Path = *dataPath
	}

	mgr, err := db.NewManager(cfg, logs.NewNodeLogger("db", 0))
	if err != nil {
		logs.Error("open db: %v", err)
		os.Exit(1)
	}
	defer mgr.Close()

	// 3. 根据运行模式启动
	switch *runMode {
	case "demo":
		err = runDemo(cfg, mgr, *amount, *carolKey)
	case "inspect":
		err = runInspect(mgr)
	default:
		err = fmt.Errorf("unknown run mode: %s", *runMode)
	}
	if err != nil {
		logs.Error("%v", err)
		mgr.Close()
		os.Exit(1)
	}
}

// newParty 随机账户；hexKey 非空时使用给定私钥
func newParty(hexKey string) (*utils.KeyManager, error) {
	km := utils.NewKeyManager()
	if hexKey != "" {
		return km, km.InitKey(hexKey)
	}
	return km, km.Generate()
}

// runDemo Bob 把资产 7 转给 Carol，Carol 发起退出并在挑战期后完成
func runDemo(cfg *config.Config, mgr *db.Manager, amountText, carolKey string) error {
	amount, err := utils.ParseAmount(amountText)
	if err != nil {
		return err
	}
	mgr.InitWriteQueue(64, 100*time.Millisecond)

	clock := settlement.NewManualClock(time.Now())
	engine, err := settlement.NewEngine(cfg, settlement.Options{
		Ledger:  mgr,
		Journal: mgr,
		Clock:   clock,
		Logger:  logs.NewNodeLogger("settlement", 0),
	})
	if err != nil {
		return err
	}
	snap, err := mgr.LoadSnapshot()
	if err != nil {
		return err
	}
	if err := engine.Restore(snap); err != nil {
		return err
	}

	// 资产 id 在已有数据之后顺延，演示可以重复运行
	uid := uint256.NewInt(7)
	for engine.Custody(uid) != nil || engine.ExitState(uid) != types.ExitNone {
		uid = new(uint256.Int).AddUint64(uid, 1)
	}
	base := uint64(10)
	if latest, ok := mgr.LatestBlock(); ok {
		base = latest + 10
	}

	alice, err := newParty("")
	if err != nil {
		return err
	}
	bob, err := newParty("")
	if err != nil {
		return err
	}
	carol, err := newParty(carolKey)
	if err != nil {
		return err
	}

	if err := engine.Deposit(uid, amount); err != nil {
		return err
	}

	prior := transaction.NewTx(base-1, uid, amount, bob.Address(), 3)
	if err := prior.Sign(alice.PrivateKey()); err != nil {
		return err
	}
	last := transaction.NewTx(base, uid, amount, carol.Address(), 4)
	if err := last.Sign(bob.PrivateKey()); err != nil {
		return err
	}

	priorProof, err := commitBlock(cfg, mgr, base, prior)
	if err != nil {
		return err
	}
	lastProof, err := commitBlock(cfg, mgr, base+1, last)
	if err != nil {
		return err
	}
	priorRaw, err := prior.Encode()
	if err != nil {
		return err
	}
	lastRaw, err := last.Encode()
	if err != nil {
		return err
	}

	if err := engine.StartExit(priorRaw, priorProof, base, lastRaw, lastProof, base+1, carol.Address()); err != nil {
		return err
	}
	rec, _ := engine.Exit(uid)
	fmt.Printf("uid=%s exit %s, deadline %s\n", uid.Dec(), rec.State, rec.Deadline.Format(time.RFC3339))

	clock.Advance(cfg.Settlement.ExitChallengePeriod + time.Second)
	if err := engine.FinishExit(carol.Address(), priorRaw, priorProof, base, lastRaw, lastProof, base+1); err != nil {
		return err
	}
	fmt.Printf("uid=%s exit %s, %s released to %s\n", uid.Dec(), engine.ExitState(uid), utils.FormatAmount(amount), carol.Address().Hex())

	counts, latency := engine.Metrics()
	ops := make([]string, 0, len(counts))
	for op := range counts {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		fmt.Printf("  %-12s ok=%d failed=%d p50=%s\n", op, counts[op].OK, counts[op].Failed, latency[op].P50)
	}
	return mgr.ForceFlush()
}

// commitBlock 打包单笔交易为区块，登记根并保存原文，返回包含证明
func commitBlock(cfg *config.Config, mgr *db.Manager, number uint64, tx *transaction.Tx) ([]byte, error) {
	bl := transactions.NewBlock(cfg.Tree.Depth)
	if err := bl.AddTx(tx); err != nil {
		return nil, err
	}
	root, err := bl.Build()
	if err != nil {
		return nil, err
	}
	if err := mgr.AppendRoot(number, root); err != nil {
		return nil, err
	}
	if err := mgr.SaveTxBlock(number, bl); err != nil {
		return nil, err
	}
	return bl.CreateProof(tx.UID), nil
}

func runInspect(mgr *db.Manager) error {
	numbers := mgr.BlockNumbers()
	fmt.Printf("ledger blocks: %d\n", len(numbers))
	for _, n := range numbers {
		root, err := mgr.RootAt(n)
		if err != nil {
			return err
		}
		fmt.Printf("  block %d root %s\n", n, root.Hex())
	}

	snap, err := mgr.LoadSnapshot()
	if err != nil {
		return err
	}
	fmt.Printf("exits: %d\n", len(snap.Exits))
	for _, rec := range snap.Exits {
		fmt.Printf("  uid=%s state=%s deadline=%s challenges=%d\n",
			rec.UID.Dec(), rec.State, rec.Deadline.Format(time.RFC3339), len(snap.ExitChallenges[rec.UID]))
	}
	fmt.Printf("custody: %d\n", len(snap.Custody))
	total := new(big.Int)
	for uid, v := range snap.Custody {
		fmt.Printf("  uid=%s amount=%s\n", uid.Dec(), utils.FormatAmount(v))
		total.Add(total, v)
	}
	fmt.Printf("  total=%s\n", utils.FormatAmount(total))
	fmt.Printf("checkpoints: %d\n", len(snap.Checkpoints))
	for _, cp := range snap.Checkpoints {
		fmt.Printf("  %s created %s\n", cp.Root.Hex(), cp.CreatedAt.Format(time.RFC3339))
	}
	fmt.Printf("open disputes: %d\n", len(snap.Disputes))
	return nil
}
