// Package contracts holds the ABI fragments of the remote contracts the portal calls.
package contracts

// RewardABI covers both the balance query and the two claim entry points.
// Deployments expose either claimReward or verifyAndClaim.
const RewardABI = `[
  {"type":"function","name":"getBalance","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"claimReward","stateMutability":"nonpayable",
   "inputs":[{"name":"customer","type":"address"},{"name":"apy","type":"uint256"},{"name":"tvl","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"verifyAndClaim","stateMutability":"nonpayable",
   "inputs":[{"name":"customer","type":"address"},{"name":"apy","type":"uint256"},{"name":"tvl","type":"uint256"}],
   "outputs":[]}
]`

// LendingPoolABI is the reserve-data read of an Aave-style lending pool.
const LendingPoolABI = `[
  {"type":"function","name":"getReservesList","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"address[]"}]},
  {"type":"function","name":"getReserveData","stateMutability":"view",
   "inputs":[{"name":"asset","type":"address"}],
   "outputs":[
     {"name":"configuration","type":"uint256"},
     {"name":"liquidityIndex","type":"uint128"},
     {"name":"currentLiquidityRate","type":"uint128"},
     {"name":"variableBorrowIndex","type":"uint128"},
     {"name":"currentVariableBorrowRate","type":"uint128"},
     {"name":"currentStableBorrowRate","type":"uint128"},
     {"name":"lastUpdateTimestamp","type":"uint40"},
     {"name":"id","type":"uint16"},
     {"name":"accruedToTreasury","type":"uint128"},
     {"name":"unbacked","type":"uint128"},
     {"name":"isolationModeTotalDebt","type":"uint128"},
     {"name":"interestRateStrategyAddress","type":"address"}]}
]`

// Claim method names accepted by the reward contract.
const (
	MethodClaimReward    = "claimReward"
	MethodVerifyAndClaim = "verifyAndClaim"
)
