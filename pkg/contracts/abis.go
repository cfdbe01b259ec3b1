package contracts

// 合约名（与 hardhat artifact / deployments 名称保持一致）
const (
	AuthRegistry           = "AuthRegistry"
	ExtRegistry            = "ExtRegistry"
	GnosisSafe             = "GnosisSafe"
	GnosisSafeProxyFactory = "GnosisSafeProxyFactory"
	AbstractStrategy       = "AbstractStrategy"
	AbstractBridge         = "AbstractBridge"
	ERC20                  = "ERC20"
	ExchangeDataProvider   = "ExchangeDataProvider"
)

// AuthRegistryABI 角色注册表
const AuthRegistryABI = `[
	{"type":"constructor","inputs":[{"name":"safe","type":"address"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"safe","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"setSafe","inputs":[{"name":"newSafe","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"setRole","inputs":[{"name":"account","type":"address"},{"name":"role","type":"uint8"},{"name":"enabled","type":"bool"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"hasRole","inputs":[{"name":"account","type":"address"},{"name":"role","type":"uint8"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"event","name":"RoleUpdated","anonymous":false,"inputs":[{"name":"account","type":"address","indexed":true},{"name":"role","type":"uint8","indexed":true},{"name":"enabled","type":"bool","indexed":false}]},
	{"type":"event","name":"SafeUpdated","anonymous":false,"inputs":[{"name":"newSafe","type":"address","indexed":true}]}
]`

// ExtRegistryABI 外部地址白名单
const ExtRegistryABI = `[
	{"type":"constructor","inputs":[{"name":"safe","type":"address"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"safe","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"setSafe","inputs":[{"name":"newSafe","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"setExternalAddress","inputs":[{"name":"externalAddress","type":"address"},{"name":"enabled","type":"bool"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"isExternalAddressAllowed","inputs":[{"name":"externalAddress","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"event","name":"ExternalAddressUpdated","anonymous":false,"inputs":[{"name":"externalAddress","type":"address","indexed":true},{"name":"enabled","type":"bool","indexed":false}]},
	{"type":"event","name":"SafeUpdated","anonymous":false,"inputs":[{"name":"newSafe","type":"address","indexed":true}]}
]`

// GnosisSafeABI Safe v1.3 子集（执行、owner、模块链表）
const GnosisSafeABI = `[
	{"type":"function","name":"setup","inputs":[{"name":"_owners","type":"address[]"},{"name":"_threshold","type":"uint256"},{"name":"to","type":"address"},{"name":"data","type":"bytes"},{"name":"fallbackHandler","type":"address"},{"name":"paymentToken","type":"address"},{"name":"payment","type":"uint256"},{"name":"paymentReceiver","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"execTransaction","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},{"name":"operation","type":"uint8"},{"name":"safeTxGas","type":"uint256"},{"name":"baseGas","type":"uint256"},{"name":"gasPrice","type":"uint256"},{"name":"gasToken","type":"address"},{"name":"refundReceiver","type":"address"},{"name":"signatures","type":"bytes"}],"outputs":[{"name":"success","type":"bool"}],"stateMutability":"payable"},
	{"type":"function","name":"approveHash","inputs":[{"name":"hashToApprove","type":"bytes32"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"nonce","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"getOwners","inputs":[],"outputs":[{"name":"","type":"address[]"}],"stateMutability":"view"},
	{"type":"function","name":"getThreshold","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"getTransactionHash","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},{"name":"operation","type":"uint8"},{"name":"safeTxGas","type":"uint256"},{"name":"baseGas","type":"uint256"},{"name":"gasPrice","type":"uint256"},{"name":"gasToken","type":"address"},{"name":"refundReceiver","type":"address"},{"name":"_nonce","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view"},
	{"type":"function","name":"enableModule","inputs":[{"name":"module","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"disableModule","inputs":[{"name":"prevModule","type":"address"},{"name":"module","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"isModuleEnabled","inputs":[{"name":"module","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"getModulesPaginated","inputs":[{"name":"start","type":"address"},{"name":"pageSize","type":"uint256"}],"outputs":[{"name":"array","type":"address[]"},{"name":"next","type":"address"}],"stateMutability":"view"},
	{"type":"event","name":"ExecutionSuccess","anonymous":false,"inputs":[{"name":"txHash","type":"bytes32","indexed":false},{"name":"payment","type":"uint256","indexed":false}]},
	{"type":"event","name":"ExecutionFailure","anonymous":false,"inputs":[{"name":"txHash","type":"bytes32","indexed":false},{"name":"payment","type":"uint256","indexed":false}]},
	{"type":"event","name":"ApproveHash","anonymous":false,"inputs":[{"name":"approvedHash","type":"bytes32","indexed":true},{"name":"owner","type":"address","indexed":true}]},
	{"type":"event","name":"EnabledModule","anonymous":false,"inputs":[{"name":"module","type":"address","indexed":false}]},
	{"type":"event","name":"DisabledModule","anonymous":false,"inputs":[{"name":"module","type":"address","indexed":false}]}
]`

// GnosisSafeProxyFactoryABI Safe 代理工厂
const GnosisSafeProxyFactoryABI = `[
	{"type":"function","name":"createProxy","inputs":[{"name":"singleton","type":"address"},{"name":"data","type":"bytes"}],"outputs":[{"name":"proxy","type":"address"}],"stateMutability":"nonpayable"},
	{"type":"event","name":"ProxyCreation","anonymous":false,"inputs":[{"name":"proxy","type":"address","indexed":false},{"name":"singleton","type":"address","indexed":false}]}
]`

// AbstractStrategyABI 策略模块公共接口
const AbstractStrategyABI = `[
	{"type":"function","name":"NAME","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"function","name":"VERSION","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"function","name":"poolName","inputs":[{"name":"pool","type":"uint256"}],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"function","name":"depositToken","inputs":[{"name":"pool","type":"uint256"}],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"depositedAmount","inputs":[{"name":"pool","type":"uint256"},{"name":"safe","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"lockedUntil","inputs":[{"name":"pool","type":"uint256"},{"name":"safe","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"supportsInterface","inputs":[{"name":"interfaceId","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"simulateClaim","inputs":[{"name":"pool","type":"uint256"},{"name":"safe","type":"address"},{"name":"data","type":"bytes"}],"outputs":[{"name":"","type":"tuple[]","components":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}]}],"stateMutability":"nonpayable"},
	{"type":"function","name":"deposit","inputs":[{"name":"pool","type":"uint256"},{"name":"safe","type":"address"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"withdraw","inputs":[{"name":"pool","type":"uint256"},{"name":"safe","type":"address"},{"name":"amount","type":"uint256"},{"name":"harvest","type":"bool"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"harvest","inputs":[{"name":"pool","type":"uint256"},{"name":"safe","type":"address"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"event","name":"Deposited","anonymous":false,"inputs":[{"name":"pool","type":"uint256","indexed":false},{"name":"safe","type":"address","indexed":false},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"Withdrew","anonymous":false,"inputs":[{"name":"pool","type":"uint256","indexed":false},{"name":"safe","type":"address","indexed":false},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"Harvested","anonymous":false,"inputs":[{"name":"pool","type":"uint256","indexed":false},{"name":"safe","type":"address","indexed":false}]}
]`

// AbstractBridgeABI 跨链模块公共接口
const AbstractBridgeABI = `[
	{"type":"function","name":"NAME","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"function","name":"VERSION","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"function","name":"allowBridgeContract","inputs":[{"name":"chainId","type":"uint256"},{"name":"bridgeContract","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"allowReceiverAddress","inputs":[{"name":"safe","type":"address"},{"name":"chainId","type":"uint256"},{"name":"receiver","type":"address"},{"name":"enabled","type":"bool"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"bridgeContracts","inputs":[{"name":"chainId","type":"uint256"}],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"isReceiverAllowed","inputs":[{"name":"safe","type":"address"},{"name":"chainId","type":"uint256"},{"name":"receiver","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"function","name":"bridge","inputs":[{"name":"safe","type":"address"},{"name":"receiver","type":"address"},{"name":"chainId","type":"uint256"},{"name":"isL1","type":"bool"},{"name":"data","type":"bytes"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"event","name":"Bridged","anonymous":false,"inputs":[{"name":"safe","type":"address","indexed":false},{"name":"receiver","type":"address","indexed":false},{"name":"chainId","type":"uint256","indexed":false},{"name":"amount","type":"uint256","indexed":false}]}
]`

// ERC20ABI 标准 ERC20 子集
const ERC20ABI = `[
	{"type":"function","name":"symbol","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"function","name":"decimals","inputs":[],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"view"},
	{"type":"function","name":"balanceOf","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable"},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
]`

// ExchangeDataProviderABI 收益兑换路径报价
const ExchangeDataProviderABI = `[
	{"type":"function","name":"swaps","inputs":[{"name":"recipient","type":"address"},{"name":"harvests","type":"tuple[]","components":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}]},{"name":"routers","type":"address[]"},{"name":"wrappedToken","type":"address"},{"name":"outputToken","type":"address"}],"outputs":[{"name":"","type":"tuple[]","components":[{"name":"router","type":"address"},{"name":"path","type":"address[]"},{"name":"amountIn","type":"uint256"},{"name":"amountOut","type":"uint256"}]}],"stateMutability":"view"},
	{"type":"function","name":"encode","inputs":[{"name":"swaps","type":"tuple[]","components":[{"name":"router","type":"address"},{"name":"path","type":"address[]"},{"name":"amountIn","type":"uint256"},{"name":"amountOut","type":"uint256"}]}],"outputs":[{"name":"","type":"bytes"}],"stateMutability":"pure"}
]`

var abiSources = map[string]string{
	AuthRegistry:           AuthRegistryABI,
	ExtRegistry:            ExtRegistryABI,
	GnosisSafe:             GnosisSafeABI,
	GnosisSafeProxyFactory: GnosisSafeProxyFactoryABI,
	AbstractStrategy:       AbstractStrategyABI,
	AbstractBridge:         AbstractBridgeABI,
	ERC20:                  ERC20ABI,
	ExchangeDataProvider:   ExchangeDataProviderABI,
}
