package cpu

// page geometry for Sv39
const (
	PGSIZE  = 4096
	PGSHIFT = 12
)

// these errors are used by MemError
// values match Unicorn's uc_mem_type so hart backends can pass them through
const (
	MEM_READ_UNMAPPED  = 19
	MEM_WRITE_UNMAPPED = 20
	MEM_FETCH_UNMAPPED = 21
	MEM_WRITE_PROT     = 12
	MEM_READ_PROT      = 13
	MEM_FETCH_PROT     = 14
)

// these constants are used for memory protections
const (
	PROT_NONE  = 0
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4
	PROT_ALL   = 7
)

// supervisor CSR numbers, as encoded in csrr/csrw
const (
	CSR_SSTATUS  = 0x100
	CSR_STVEC    = 0x105
	CSR_SSCRATCH = 0x140
	CSR_SEPC     = 0x141
	CSR_SCAUSE   = 0x142
	CSR_STVAL    = 0x143
	CSR_SATP     = 0x180
)

var CSRs = []int{CSR_SSTATUS, CSR_STVEC, CSR_SSCRATCH, CSR_SEPC, CSR_SCAUSE, CSR_STVAL, CSR_SATP}

var csrNames = map[int]string{
	CSR_SSTATUS:  "sstatus",
	CSR_STVEC:    "stvec",
	CSR_SSCRATCH: "sscratch",
	CSR_SEPC:     "sepc",
	CSR_SCAUSE:   "scause",
	CSR_STVAL:    "stval",
	CSR_SATP:     "satp",
}

func CSRName(csr int) string {
	if name, ok := csrNames[csr]; ok {
		return name
	}
	return "csr?"
}

// sstatus bits
const (
	SSTATUS_SIE  = 1 << 1
	SSTATUS_SPIE = 1 << 5
	SSTATUS_SPP  = 1 << 8
)

// scause exception codes
const (
	CAUSE_ILLEGAL_INSTRUCTION = 2
	CAUSE_BREAKPOINT          = 3
	CAUSE_USER_ECALL          = 8
	CAUSE_FETCH_PAGE_FAULT    = 12
	CAUSE_LOAD_PAGE_FAULT     = 13
	CAUSE_STORE_PAGE_FAULT    = 15
)

const (
	SATP_SV39 = uint64(8) << 60
)

func MakeSatp(root uint64) uint64 {
	return SATP_SV39 | root>>PGSHIFT
}

// integer register indices (x0-x31) under their ABI names
const (
	REG_ZERO = iota
	REG_RA
	REG_SP
	REG_GP
	REG_TP
	REG_T0
	REG_T1
	REG_T2
	REG_S0
	REG_S1
	REG_A0
	REG_A1
	REG_A2
	REG_A3
	REG_A4
	REG_A5
	REG_A6
	REG_A7
	REG_S2
	REG_S3
	REG_S4
	REG_S5
	REG_S6
	REG_S7
	REG_S8
	REG_S9
	REG_S10
	REG_S11
	REG_T3
	REG_T4
	REG_T5
	REG_T6

	NUM_REGS
)

var RegNames = [NUM_REGS]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}
